package audio

import (
	"time"
)

// Buffer accumulates the samples of one utterance. It grows without bound on
// its own; callers enforce the duration cap. Buffer is owned by a single
// goroutine and does no locking.
type Buffer struct {
	sampleRate int
	samples    []float32

	// Statistics
	appended uint64
	resets   uint64
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	SampleRate      int     `json:"sample_rate"`
	Samples         int     `json:"samples"`
	DurationSeconds float64 `json:"duration_seconds"`
	TotalAppended   uint64  `json:"total_appended_samples"`
	Resets          uint64  `json:"resets"`
}

// NewBuffer creates an empty utterance buffer
func NewBuffer(sampleRate int) *Buffer {
	return &Buffer{
		sampleRate: sampleRate,
		samples:    make([]float32, 0, sampleRate*2), // Pre-allocate for 2 seconds
	}
}

// Append copies samples onto the end of the buffer
func (b *Buffer) Append(samples []float32) {
	b.samples = append(b.samples, samples...)
	b.appended += uint64(len(samples))
}

// Samples returns a copy of the buffered samples
func (b *Buffer) Samples() []float32 {
	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	return out
}

// Take returns the buffered samples and leaves the buffer empty.
// Ownership of the returned slice passes to the caller.
func (b *Buffer) Take() []float32 {
	out := b.Samples()
	b.Reset()
	return out
}

// Reset empties the buffer, keeping its allocation
func (b *Buffer) Reset() {
	b.samples = b.samples[:0]
	b.resets++
}

// Len returns the number of buffered samples
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Duration returns the buffered audio duration
func (b *Buffer) Duration() time.Duration {
	return SamplesDuration(len(b.samples), b.sampleRate)
}

// SampleRate returns the buffer's sample rate
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	return BufferStats{
		SampleRate:      b.sampleRate,
		Samples:         len(b.samples),
		DurationSeconds: b.Duration().Seconds(),
		TotalAppended:   b.appended,
		Resets:          b.resets,
	}
}

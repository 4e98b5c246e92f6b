package audio

import (
	"fmt"
	"time"
)

// Framer turns sequenced PCM packets of arbitrary length into fixed-size
// chunks. Out-of-order packets are held until the hole before them is filled
// or the hole grows past the reorder window, in which case the missing packets
// are declared lost and the next chunk carries StatusGap.
//
// Framer is not safe for concurrent use.
type Framer struct {
	chunkSize  int
	sampleRate int

	pending []float32
	flags   ChunkStatus
	nextSeq uint64

	// Sequence tracking
	started     bool
	expectedSeq uint32
	reorder     map[uint32][]float32
	maxGap      uint32

	// Statistics
	totalPackets uint32
	lostPackets  uint32
	latePackets  uint32

	now func() time.Time
}

// FramerStats represents framer statistics for monitoring
type FramerStats struct {
	TotalPackets  uint32  `json:"total_packets"`
	LostPackets   uint32  `json:"lost_packets"`
	LatePackets   uint32  `json:"late_packets"`
	LossRate      float64 `json:"loss_rate"`
	PendingSeqs   int     `json:"pending_sequences"`
	PendingFrames int     `json:"pending_samples"`
	ChunksEmitted uint64  `json:"chunks_emitted"`
}

// NewFramer creates a framer producing chunks of chunkSize samples
func NewFramer(chunkSize, sampleRate int) *Framer {
	return &Framer{
		chunkSize:  chunkSize,
		sampleRate: sampleRate,
		pending:    make([]float32, 0, chunkSize*4),
		reorder:    make(map[uint32][]float32),
		maxGap:     20, // Wait for up to 20 missing packets
		now:        time.Now,
	}
}

// SetReorderWindow sets how many missing packets are waited for before they
// are declared lost
func (f *Framer) SetReorderWindow(packets uint32) {
	f.maxGap = packets
}

// AddPacket decodes a PCM16LE payload carrying the given packet sequence
// number. Status flags are attached to the next chunk emitted.
func (f *Framer) AddPacket(sequence uint32, pcm []byte, status ChunkStatus) error {
	samples, err := PCM16ToFloat32(pcm)
	if err != nil {
		return err
	}
	return f.AddSamples(sequence, samples, status)
}

// AddSamples is AddPacket for payloads that were already decoded, for
// example after resampling to the pipeline rate
func (f *Framer) AddSamples(sequence uint32, samples []float32, status ChunkStatus) error {
	f.flags |= status

	// Initialize expected sequence on first packet
	if !f.started {
		f.started = true
		f.expectedSeq = sequence
	}
	f.totalPackets++

	switch {
	case sequence == f.expectedSeq:
		f.pending = append(f.pending, samples...)
		f.expectedSeq++
		f.drainReordered()

	case sequence > f.expectedSeq:
		f.reorder[sequence] = samples

		// Give up on missing packets once the hole is too wide
		for sequence-f.expectedSeq > f.maxGap {
			if buffered, ok := f.reorder[f.expectedSeq]; ok {
				f.pending = append(f.pending, buffered...)
				delete(f.reorder, f.expectedSeq)
			} else {
				f.lostPackets++
				f.flags |= StatusGap
			}
			f.expectedSeq++
		}
		f.drainReordered()

	default:
		f.latePackets++
		return fmt.Errorf("ignoring old/duplicate packet: seq=%d, expected=%d", sequence, f.expectedSeq)
	}

	return nil
}

// Write appends unsequenced samples, as produced by file or device sources
func (f *Framer) Write(samples []float32, status ChunkStatus) {
	f.flags |= status
	f.pending = append(f.pending, samples...)
}

// drainReordered moves consecutive buffered packets into the pending samples
func (f *Framer) drainReordered() {
	for {
		samples, ok := f.reorder[f.expectedSeq]
		if !ok {
			return
		}
		f.pending = append(f.pending, samples...)
		delete(f.reorder, f.expectedSeq)
		f.expectedSeq++
	}
}

// Chunks returns every complete chunk currently available
func (f *Framer) Chunks() []Chunk {
	var out []Chunk
	for len(f.pending) >= f.chunkSize {
		samples := make([]float32, f.chunkSize)
		copy(samples, f.pending[:f.chunkSize])

		// Shift remaining samples
		n := copy(f.pending, f.pending[f.chunkSize:])
		f.pending = f.pending[:n]

		out = append(out, f.emit(samples))
	}
	return out
}

// Flush pads any remaining partial chunk with silence and returns it.
// The second result is false when nothing was pending.
func (f *Framer) Flush() (Chunk, bool) {
	// Release anything still waiting for a missing packet
	for len(f.reorder) > 0 {
		if buffered, ok := f.reorder[f.expectedSeq]; ok {
			f.pending = append(f.pending, buffered...)
			delete(f.reorder, f.expectedSeq)
		} else {
			f.lostPackets++
			f.flags |= StatusGap
		}
		f.expectedSeq++
	}

	if len(f.pending) == 0 {
		return Chunk{}, false
	}

	samples := make([]float32, f.chunkSize)
	n := copy(samples, f.pending)
	f.pending = f.pending[:0]
	if n < f.chunkSize {
		f.flags |= StatusUnderrun
	}
	return f.emit(samples), true
}

func (f *Framer) emit(samples []float32) Chunk {
	c := Chunk{
		Samples:    samples,
		SampleRate: f.sampleRate,
		Sequence:   f.nextSeq,
		Captured:   f.now(),
		Status:     f.flags,
	}
	f.nextSeq++
	f.flags = 0
	return c
}

// GetStats returns current framer statistics
func (f *Framer) GetStats() FramerStats {
	lossRate := float64(0)
	if f.totalPackets > 0 {
		lossRate = float64(f.lostPackets) / float64(f.totalPackets) * 100
	}

	return FramerStats{
		TotalPackets:  f.totalPackets,
		LostPackets:   f.lostPackets,
		LatePackets:   f.latePackets,
		LossRate:      lossRate,
		PendingSeqs:   len(f.reorder),
		PendingFrames: len(f.pending),
		ChunksEmitted: f.nextSeq,
	}
}

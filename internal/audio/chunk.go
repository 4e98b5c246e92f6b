package audio

import (
	"strings"
	"time"
)

// ChunkStatus carries device-level warnings attached to a chunk by its source.
// A non-zero status is logged and counted but never treated as fatal.
type ChunkStatus uint8

const (
	// StatusOverflow means the device or transport reported input overflow
	StatusOverflow ChunkStatus = 1 << iota
	// StatusGap means samples were lost between this chunk and the previous one
	StatusGap
	// StatusUnderrun means the chunk was padded with silence to reach full size
	StatusUnderrun
)

// String returns a compact, comma separated list of the set flags
func (s ChunkStatus) String() string {
	if s == 0 {
		return "ok"
	}
	var parts []string
	if s&StatusOverflow != 0 {
		parts = append(parts, "overflow")
	}
	if s&StatusGap != 0 {
		parts = append(parts, "gap")
	}
	if s&StatusUnderrun != 0 {
		parts = append(parts, "underrun")
	}
	return strings.Join(parts, ",")
}

// Chunk is a fixed-length run of mono float32 samples produced by a source.
// Chunks are immutable once emitted; consumers must copy before mutating.
type Chunk struct {
	Samples    []float32
	SampleRate int
	Sequence   uint64
	Captured   time.Time
	Status     ChunkStatus
}

// Duration returns the playback duration of the chunk
func (c Chunk) Duration() time.Duration {
	return SamplesDuration(len(c.Samples), c.SampleRate)
}

// SamplesDuration converts a sample count at the given rate into a duration
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// DurationSamples converts a duration into a sample count at the given rate
func DurationSamples(d time.Duration, sampleRate int) int {
	return int(d * time.Duration(sampleRate) / time.Second)
}

package vad

// Boundary is the per-chunk verdict of a Detector
type Boundary int

const (
	// BoundaryNone means no transition happened on this chunk
	BoundaryNone Boundary = iota
	// BoundaryStart marks the onset of speech
	BoundaryStart
	// BoundaryEnd marks the end of speech after enough trailing silence
	BoundaryEnd
)

// String returns the boundary name
func (b Boundary) String() string {
	switch b {
	case BoundaryStart:
		return "start"
	case BoundaryEnd:
		return "end"
	default:
		return "none"
	}
}

// Detector is a stateful voice activity detector fed one chunk at a time.
// Implementations need not be safe for concurrent use.
type Detector interface {
	// Detect consumes a chunk and reports whether speech started or ended
	Detect(chunk []float32) Boundary
	// Reset clears internal state so the next chunk is judged from scratch
	Reset()
}

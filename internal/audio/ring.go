package audio

// Ring is a bounded sample window that keeps only the most recent Cap()
// samples. It is not safe for concurrent use; it is owned by a single
// consumer goroutine.
type Ring struct {
	data  []float32
	start int // index of the oldest sample
	size  int
}

// NewRing creates a ring holding at most capacity samples. A non-positive
// capacity yields a ring that never retains anything.
func NewRing(capacity int) *Ring {
	if capacity < 0 {
		capacity = 0
	}
	return &Ring{data: make([]float32, capacity)}
}

// Push appends samples, overwriting the oldest ones once the ring is full
func (r *Ring) Push(samples []float32) {
	capacity := len(r.data)
	if capacity == 0 {
		return
	}

	// Only the tail of a long input can survive
	if len(samples) >= capacity {
		copy(r.data, samples[len(samples)-capacity:])
		r.start = 0
		r.size = capacity
		return
	}

	for _, s := range samples {
		end := (r.start + r.size) % capacity
		r.data[end] = s
		if r.size < capacity {
			r.size++
		} else {
			r.start = (r.start + 1) % capacity
		}
	}
}

// Snapshot returns a copy of the retained samples, oldest first
func (r *Ring) Snapshot() []float32 {
	out := make([]float32, r.size)
	if r.size == 0 {
		return out
	}
	n := copy(out, r.data[r.start:min(r.start+r.size, len(r.data))])
	if n < r.size {
		copy(out[n:], r.data[:r.size-n])
	}
	return out
}

// Len returns the number of retained samples
func (r *Ring) Len() int { return r.size }

// Cap returns the ring capacity in samples
func (r *Ring) Cap() int { return len(r.data) }

// Reset drops all retained samples
func (r *Ring) Reset() {
	r.start = 0
	r.size = 0
}

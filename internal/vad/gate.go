package vad

import (
	"github.com/skypro1111/livecaption/internal/audio"
)

// EventKind identifies what the gate observed on a chunk
type EventKind int

const (
	EventNone EventKind = iota
	EventStart
	EventEnd
)

// String returns the event name
func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	default:
		return "none"
	}
}

// Event is the result of feeding one chunk through the gate. Samples is set
// only for EventEnd; ownership passes to the caller.
type Event struct {
	Kind    EventKind
	Samples []float32
}

// Gate turns detector boundaries into utterance events. It keeps a ring of
// the most recent audio so that an utterance begins with the pre-speech
// window plus the chunk that triggered the start.
type Gate struct {
	detector  Detector
	ring      *audio.Ring
	utterance []float32
	speaking  bool
}

// NewGate creates a gate keeping preSpeechSamples of audio ahead of each
// utterance
func NewGate(detector Detector, preSpeechSamples int) *Gate {
	return &Gate{
		detector: detector,
		ring:     audio.NewRing(preSpeechSamples),
	}
}

// Process feeds one chunk through the detector
func (g *Gate) Process(chunk []float32) Event {
	boundary := g.detector.Detect(chunk)

	switch {
	case boundary == BoundaryStart && !g.speaking:
		g.speaking = true
		pre := g.ring.Snapshot()
		g.utterance = make([]float32, 0, len(pre)+len(chunk))
		g.utterance = append(g.utterance, pre...)
		g.utterance = append(g.utterance, chunk...)
		g.ring.Reset()
		return Event{Kind: EventStart}

	case boundary == BoundaryEnd && g.speaking:
		g.speaking = false
		g.ring.Push(chunk)
		out := g.utterance
		g.utterance = nil
		return Event{Kind: EventEnd, Samples: out}
	}

	// Start while speaking and end while idle fall through as no-ops
	g.ring.Push(chunk)
	if g.speaking {
		g.utterance = append(g.utterance, chunk...)
	}
	return Event{Kind: EventNone}
}

// Reset is the soft reset: drops the utterance and the ring, and resets the
// detector once
func (g *Gate) Reset() {
	g.speaking = false
	g.utterance = nil
	g.ring.Reset()
	g.detector.Reset()
}

// IsSpeaking reports whether the gate is inside an utterance
func (g *Gate) IsSpeaking() bool {
	return g.speaking
}

// PreSpeechLen returns the number of samples currently held in the ring
func (g *Gate) PreSpeechLen() int {
	return g.ring.Len()
}

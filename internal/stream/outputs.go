package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/livecaption/internal/broadcast"
	"github.com/skypro1111/livecaption/internal/caption"
	"github.com/skypro1111/livecaption/internal/metrics"
)

// Caption is a transcription ready for delivery. Partials are advisory and
// never persisted by default.
type Caption struct {
	UtteranceID string
	Text        string
	Line        string
	Final       bool
	Duration    time.Duration
	Timestamp   time.Time
}

// Output receives captions from the controller on the consumer goroutine.
// Deliver must not block for long.
type Output interface {
	Deliver(ctx context.Context, c Caption) error
}

// OutputFunc adapts a function into an Output
type OutputFunc func(ctx context.Context, c Caption) error

// Deliver implements Output
func (f OutputFunc) Deliver(ctx context.Context, c Caption) error { return f(ctx, c) }

// TranscriptOutput writes finals, and partials if the sink keeps them, to the
// transcript file
type TranscriptOutput struct {
	Sink    *caption.FileSink
	Metrics *metrics.Metrics
}

// Deliver implements Output
func (o TranscriptOutput) Deliver(ctx context.Context, c Caption) error {
	if !c.Final {
		return o.Sink.WritePartial(c.Text)
	}
	if err := o.Sink.WriteFinal(c.Text); err != nil {
		o.Metrics.RecordSinkError()
		return err
	}
	o.Metrics.RecordCaptionWritten()
	return nil
}

// DisplayOutput renders caption lines on the terminal
type DisplayOutput struct {
	Display *caption.Display
}

// Deliver implements Output
func (o DisplayOutput) Deliver(ctx context.Context, c Caption) error {
	if c.Final {
		o.Display.ShowFinal(c.Line)
	} else {
		o.Display.ShowPartial(c.Line)
	}
	return nil
}

// HubOutput publishes captions to websocket subscribers
type HubOutput struct {
	Hub *broadcast.Hub
}

// Deliver implements Output
func (o HubOutput) Deliver(ctx context.Context, c Caption) error {
	kind := broadcast.EventPartial
	if c.Final {
		kind = broadcast.EventFinal
	}
	o.Hub.Publish(broadcast.CaptionEvent{
		Type:        kind,
		Text:        c.Text,
		Line:        c.Line,
		UtteranceID: c.UtteranceID,
		Timestamp:   c.Timestamp,
	})
	return nil
}

// Aggregator accepts final utterances for downstream processing
type Aggregator interface {
	Add(text string)
}

// FinalsOutput forwards final captions only
type FinalsOutput struct {
	Target Aggregator
}

// Deliver implements Output
func (o FinalsOutput) Deliver(ctx context.Context, c Caption) error {
	if c.Final {
		o.Target.Add(c.Text)
	}
	return nil
}

// StopPhraseOutput calls Stop once when a final caption contains Phrase,
// ignoring case
type StopPhraseOutput struct {
	Phrase string
	Stop   func()
	once   *sync.Once
}

// NewStopPhraseOutput creates a stop phrase watcher
func NewStopPhraseOutput(phrase string, stop func()) StopPhraseOutput {
	return StopPhraseOutput{Phrase: strings.ToLower(strings.TrimSpace(phrase)), Stop: stop, once: &sync.Once{}}
}

// Deliver implements Output
func (o StopPhraseOutput) Deliver(ctx context.Context, c Caption) error {
	if !c.Final || o.Phrase == "" {
		return nil
	}
	if strings.Contains(strings.ToLower(c.Text), o.Phrase) {
		o.once.Do(o.Stop)
	}
	return nil
}

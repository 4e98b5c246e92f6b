package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skypro1111/livecaption/internal/audio"
	"github.com/skypro1111/livecaption/internal/metrics"
	"github.com/skypro1111/livecaption/internal/source"
	"github.com/skypro1111/livecaption/internal/vad"
)

// finiteSource emits n chunks and reports exhaustion
func finiteSource(n int) source.Source {
	return source.Func(func(ctx context.Context, emit func(audio.Chunk)) error {
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			emit(testChunk(i))
		}
		return nil
	})
}

// syncOutput collects captions from the consumer goroutine
type syncOutput struct {
	mu       sync.Mutex
	captions []Caption
}

func (o *syncOutput) Deliver(ctx context.Context, c Caption) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.captions = append(o.captions, c)
	return nil
}

func (o *syncOutput) finals() []Caption {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Caption
	for _, c := range o.captions {
		if c.Final {
			out = append(out, c)
		}
	}
	return out
}

func newTestPipeline(t *testing.T, src source.Source, script map[int]vad.Boundary, text string, queueSize int, outputs ...Output) (*Pipeline, *metrics.Metrics) {
	t.Helper()

	cfg := DefaultControllerConfig()
	cfg.MinRefresh = time.Hour
	m := metrics.NewMetrics(prometheus.NewRegistry())
	gate := vad.NewGate(newScriptedDetector(script), cfg.LookbackChunks*cfg.ChunkSize)

	controller, err := NewController(cfg, gate, &recordingEngine{text: text}, testLogger(), m, WithOutputs(outputs...))
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	return NewPipeline(src, controller, queueSize, testLogger(), m), m
}

func TestPipelineFlushesOnExhaustion(t *testing.T) {
	out := &syncOutput{}
	p, _ := newTestPipeline(t, finiteSource(40), map[int]vad.Boundary{5: vad.BoundaryStart}, "unfinished thought", 64, out)

	var order []string
	p.OnDrained("first", func() error {
		order = append(order, "first")
		// The flushed final is delivered before closers run
		if len(out.finals()) != 1 {
			t.Error("Expected the final caption before closers")
		}
		return nil
	})
	p.OnDrained("second", func() error {
		order = append(order, "second")
		return errors.New("close failed")
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	finals := out.finals()
	if len(finals) != 1 || finals[0].Text != "unfinished thought" {
		t.Errorf("Expected flushed final, got %+v", finals)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Expected closers in registration order, got %v", order)
	}

	stats := p.GetStats()
	if stats.ChunksReceived != 40 || stats.ChunksProcessed != 40 {
		t.Errorf("Expected 40 chunks received and processed, got %d and %d",
			stats.ChunksReceived, stats.ChunksProcessed)
	}
	if stats.Running {
		t.Error("Expected pipeline stopped")
	}
	if stats.Controller.State != StateIdle.String() {
		t.Errorf("Expected idle controller, got %s", stats.Controller.State)
	}
}

func TestPipelineCancelDrainsQueue(t *testing.T) {
	emitted := make(chan struct{})
	src := source.Func(func(ctx context.Context, emit func(audio.Chunk)) error {
		for i := 0; i < 30; i++ {
			emit(testChunk(i))
		}
		close(emitted)
		<-ctx.Done()
		return ctx.Err()
	})

	out := &syncOutput{}
	script := map[int]vad.Boundary{0: vad.BoundaryStart}
	p, _ := newTestPipeline(t, src, script, "cut off by shutdown", 64, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-emitted
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for pipeline")
	}

	if got := p.GetStats().ChunksProcessed; got != 30 {
		t.Errorf("Expected all 30 queued chunks processed, got %d", got)
	}
	if len(out.finals()) != 1 {
		t.Errorf("Expected the recording to be finalized on shutdown, got %d finals", len(out.finals()))
	}
}

func TestPipelineSourceError(t *testing.T) {
	src := source.Func(func(ctx context.Context, emit func(audio.Chunk)) error {
		return errors.New("device unplugged")
	})
	p, _ := newTestPipeline(t, src, nil, "", 4)

	err := p.Run(context.Background())
	if err == nil || err.Error() != "source failed: device unplugged" {
		t.Errorf("Expected wrapped source error, got %v", err)
	}
}

func TestPipelineEmitDropsWhenFull(t *testing.T) {
	p, m := newTestPipeline(t, finiteSource(0), nil, "", 2)

	for i := 0; i < 5; i++ {
		p.emit(testChunk(i))
	}

	stats := p.GetStats()
	if stats.ChunksReceived != 2 {
		t.Errorf("Expected 2 chunks queued, got %d", stats.ChunksReceived)
	}
	if stats.ChunksDropped != 3 {
		t.Errorf("Expected 3 chunks dropped, got %d", stats.ChunksDropped)
	}
	if stats.QueueLength != 2 || stats.QueueCapacity != 2 {
		t.Errorf("Expected full queue of 2, got %d/%d", stats.QueueLength, stats.QueueCapacity)
	}
	if got := testutil.ToFloat64(m.ChunksDropped); got != 3 {
		t.Errorf("Expected 3 dropped in metrics, got %v", got)
	}
}

func TestPipelineProcessesFlaggedChunks(t *testing.T) {
	src := source.Func(func(ctx context.Context, emit func(audio.Chunk)) error {
		c := testChunk(0)
		c.Status = audio.StatusOverflow
		emit(c)
		emit(audio.Chunk{Sequence: 1, Status: audio.StatusGap})
		emit(testChunk(2))
		return nil
	})
	p, m := newTestPipeline(t, src, nil, "", 8)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stats := p.GetStats()
	if stats.ChunkWarnings != 2 {
		t.Errorf("Expected 2 chunk warnings, got %d", stats.ChunkWarnings)
	}
	// The empty chunk is skipped; the flagged one is still processed
	if stats.ChunksProcessed != 2 {
		t.Errorf("Expected 2 chunks processed, got %d", stats.ChunksProcessed)
	}
	if got := testutil.ToFloat64(m.ChunkWarnings.WithLabelValues("overflow")); got != 1 {
		t.Errorf("Expected 1 overflow warning, got %v", got)
	}
}

func TestPipelineRunTwice(t *testing.T) {
	block := make(chan struct{})
	src := source.Func(func(ctx context.Context, emit func(audio.Chunk)) error {
		<-block
		return nil
	})
	p, _ := newTestPipeline(t, src, nil, "", 4)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	waitUntil(t, func() bool { return p.GetStats().Running })
	if err := p.Run(context.Background()); err == nil {
		t.Error("Expected error when running twice")
	}

	close(block)
	if err := <-done; err != nil {
		t.Errorf("Expected first run to finish cleanly, got %v", err)
	}
}

func TestStopPhraseOutput(t *testing.T) {
	stops := 0
	out := NewStopPhraseOutput("  Stop Recording ", func() { stops++ })
	ctx := context.Background()

	out.Deliver(ctx, Caption{Text: "please stop recording now", Final: false})
	if stops != 0 {
		t.Error("Expected partials to be ignored")
	}

	out.Deliver(ctx, Caption{Text: "okay STOP RECORDING", Final: true})
	out.Deliver(ctx, Caption{Text: "stop recording again", Final: true})
	if stops != 1 {
		t.Errorf("Expected a single stop, got %d", stops)
	}

	disabled := NewStopPhraseOutput("", func() { t.Error("Expected empty phrase to never stop") })
	disabled.Deliver(ctx, Caption{Text: "anything", Final: true})
}

type collectingAggregator struct {
	texts []string
}

func (a *collectingAggregator) Add(text string) { a.texts = append(a.texts, text) }

func TestFinalsOutputForwardsFinalsOnly(t *testing.T) {
	agg := &collectingAggregator{}
	out := FinalsOutput{Target: agg}

	out.Deliver(context.Background(), Caption{Text: "partial", Final: false})
	out.Deliver(context.Background(), Caption{Text: "final", Final: true})

	if len(agg.texts) != 1 || agg.texts[0] != "final" {
		t.Errorf("Expected only the final forwarded, got %v", agg.texts)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/livecaption/internal/audio"
	"github.com/skypro1111/livecaption/internal/caption"
	"github.com/skypro1111/livecaption/internal/metrics"
	"github.com/skypro1111/livecaption/internal/transcription"
	"github.com/skypro1111/livecaption/internal/vad"
)

// State is the controller's recording state
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Action is the edge taken on a chunk
type Action int

const (
	ActionNone Action = iota
	ActionStart
	ActionPartial
	ActionFinalize
	ActionCapFinalize
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStart:
		return "start"
	case ActionPartial:
		return "partial"
	case ActionFinalize:
		return "finalize"
	case ActionCapFinalize:
		return "cap_finalize"
	case ActionAbort:
		return "abort"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Step describes what HandleChunk did with one chunk. Text holds the
// transcription produced by a partial or final, if any.
type Step struct {
	From   State
	To     State
	Action Action
	Text   string
}

// ControllerConfig holds the segmentation and refresh thresholds
type ControllerConfig struct {
	SampleRate     int
	ChunkSize      int
	LookbackChunks int
	// MaxSpeech caps the length of one utterance
	MaxSpeech time.Duration
	// MinRefresh is the interval between partial transcriptions
	MinRefresh time.Duration
	// MinUtterance is the shortest audio worth finalizing
	MinUtterance time.Duration
	// MaxEmptyPartials consecutive empty partials abort the recording
	MaxEmptyPartials int
	LineWidth        int
}

// DefaultControllerConfig returns the stock thresholds for 16 kHz audio
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		SampleRate:       16000,
		ChunkSize:        512,
		LookbackChunks:   8,
		MaxSpeech:        20 * time.Second,
		MinRefresh:       time.Second,
		MinUtterance:     300 * time.Millisecond,
		MaxEmptyPartials: 3,
		LineWidth:        80,
	}
}

// input is everything the transition function looks at
type input struct {
	event           vad.EventKind
	overCap         bool
	refreshDue      bool
	streakExhausted bool
}

// transition decides the next state and action. It has no side effects.
func transition(s State, in input) (State, Action) {
	switch s {
	case StateIdle:
		if in.event == vad.EventStart {
			return StateRecording, ActionStart
		}
		return StateIdle, ActionNone

	case StateRecording:
		switch {
		case in.event == vad.EventEnd:
			return StateIdle, ActionFinalize
		case in.overCap:
			return StateIdle, ActionCapFinalize
		case in.streakExhausted:
			return StateIdle, ActionAbort
		case in.refreshDue:
			return StateRecording, ActionPartial
		}
		return StateRecording, ActionNone
	}

	return s, ActionNone
}

// Controller owns the gate, the lookback window and the utterance buffer.
// All methods except GetStats must be called from one goroutine.
type Controller struct {
	cfg     ControllerConfig
	gate    *vad.Gate
	engine  transcription.Engine
	outputs []Output
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	state       State
	lookback    *audio.Ring
	utterance   *audio.Buffer
	startedAt   time.Time
	lastPartial time.Time
	emptyStreak int
	cache       caption.Cache
	utteranceID string

	stats controllerStats
}

type controllerStats struct {
	chunks    atomic.Uint64
	starts    atomic.Uint64
	partials  atomic.Uint64
	finals    atomic.Uint64
	caps      atomic.Uint64
	aborts    atomic.Uint64
	skipped   atomic.Uint64
	failures  atomic.Uint64
	recording atomic.Bool
}

// ControllerStats represents controller statistics for the HTTP API
type ControllerStats struct {
	State          string `json:"state"`
	Chunks         uint64 `json:"chunks"`
	Utterances     uint64 `json:"utterances_started"`
	Partials       uint64 `json:"partials"`
	Finals         uint64 `json:"finals"`
	CapFinalizes   uint64 `json:"cap_finalizes"`
	Aborts         uint64 `json:"aborts"`
	SkippedShort   uint64 `json:"skipped_short"`
	EngineFailures uint64 `json:"engine_failures"`
}

// ControllerOption customizes a Controller
type ControllerOption func(*Controller)

// WithClock replaces time.Now
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithOutputs sets where captions are delivered
func WithOutputs(outputs ...Output) ControllerOption {
	return func(c *Controller) { c.outputs = append(c.outputs, outputs...) }
}

// NewController creates an idle controller
func NewController(cfg ControllerConfig, gate *vad.Gate, engine transcription.Engine,
	logger *slog.Logger, m *metrics.Metrics, opts ...ControllerOption) (*Controller, error) {

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.LookbackChunks < 0 {
		return nil, fmt.Errorf("lookback chunks must not be negative, got %d", cfg.LookbackChunks)
	}
	if cfg.MaxSpeech <= 0 {
		return nil, fmt.Errorf("max speech duration must be positive, got %v", cfg.MaxSpeech)
	}
	if cfg.MaxEmptyPartials <= 0 {
		return nil, fmt.Errorf("max empty partials must be positive, got %d", cfg.MaxEmptyPartials)
	}
	if gate == nil || engine == nil {
		return nil, fmt.Errorf("gate and engine are required")
	}

	c := &Controller{
		cfg:       cfg,
		gate:      gate,
		engine:    engine,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		state:     StateIdle,
		lookback:  audio.NewRing(cfg.LookbackChunks * cfg.ChunkSize),
		utterance: audio.NewBuffer(cfg.SampleRate),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// HandleChunk advances the state machine by one chunk
func (c *Controller) HandleChunk(ctx context.Context, chunk audio.Chunk) Step {
	c.stats.chunks.Add(1)
	now := c.now()
	from := c.state

	// Idle audio only feeds the lookback window
	if from == StateIdle {
		c.lookback.Push(chunk.Samples)
	} else {
		c.utterance.Append(chunk.Samples)
	}

	ev := c.gate.Process(chunk.Samples)
	if ev.Kind != vad.EventNone {
		c.metrics.RecordVADEvent(ev.Kind.String())
	}

	in := input{event: ev.Kind}
	if from == StateRecording {
		in.overCap = c.utterance.Duration() > c.cfg.MaxSpeech
		in.refreshDue = now.Sub(c.lastPartial) > c.cfg.MinRefresh
	}

	to, action := transition(from, in)
	step := Step{From: from, To: to, Action: action}

	switch action {
	case ActionStart:
		c.beginRecording(now, chunk.Samples)

	case ActionFinalize:
		step.Text = c.finalize(ctx, ev.Samples, "end")
		c.utterance.Reset()

	case ActionCapFinalize:
		c.stats.caps.Add(1)
		c.logger.Info("Utterance reached max duration, finalizing",
			slog.String("utterance_id", c.utteranceID),
			slog.Duration("max_speech", c.cfg.MaxSpeech))
		step.Text = c.finalize(ctx, c.utterance.Take(), "cap")
		c.gate.Reset()

	case ActionPartial:
		step.Text = c.refreshPartial(ctx)
		c.lastPartial = now

		if c.emptyStreak >= c.cfg.MaxEmptyPartials {
			step.To, step.Action = transition(StateRecording, input{streakExhausted: true})
			c.abort()
		}
	}

	c.state = step.To
	c.stats.recording.Store(c.state == StateRecording)
	if step.Action != ActionNone {
		c.metrics.RecordAction(step.Action.String(), c.state == StateRecording)
	}

	return step
}

// beginRecording seeds the utterance with the lookback window. The window
// already ends with the start chunk unless it is too small to hold it.
func (c *Controller) beginRecording(now time.Time, startChunk []float32) {
	c.utterance.Reset()
	if c.lookback.Cap() >= len(startChunk) {
		c.utterance.Append(c.lookback.Snapshot())
	} else {
		c.utterance.Append(startChunk)
	}
	c.lookback.Reset()
	c.startedAt = now
	c.lastPartial = now
	c.emptyStreak = 0
	c.utteranceID = uuid.NewString()
	c.stats.starts.Add(1)

	c.logger.Debug("Speech started",
		slog.String("utterance_id", c.utteranceID),
		slog.Int("lookback_samples", c.utterance.Len()))
}

// abort discards the utterance after repeated empty partials
func (c *Controller) abort() {
	c.stats.aborts.Add(1)
	c.logger.Info("Aborting utterance after empty partials",
		slog.String("utterance_id", c.utteranceID),
		slog.Int("empty_partials", c.emptyStreak),
		slog.Duration("buffered", c.utterance.Duration()))

	c.utterance.Reset()
	c.gate.Reset()
	c.emptyStreak = 0
}

// Flush finalizes an in-progress recording. Used on shutdown.
func (c *Controller) Flush(ctx context.Context) Step {
	if c.state != StateRecording {
		return Step{From: c.state, To: c.state, Action: ActionNone}
	}

	text := c.finalize(ctx, c.utterance.Take(), "flush")
	c.gate.Reset()
	c.state = StateIdle
	c.stats.recording.Store(false)
	c.metrics.RecordAction(ActionFinalize.String(), false)

	return Step{From: StateRecording, To: StateIdle, Action: ActionFinalize, Text: text}
}

// finalize transcribes a finished utterance and delivers it as a final caption
func (c *Controller) finalize(ctx context.Context, samples []float32, reason string) string {
	duration := audio.SamplesDuration(len(samples), c.cfg.SampleRate)
	if duration < c.cfg.MinUtterance {
		c.stats.skipped.Add(1)
		c.metrics.RecordUtteranceSkipped()
		c.logger.Debug("Discarding short utterance",
			slog.String("utterance_id", c.utteranceID),
			slog.Duration("duration", duration))
		return ""
	}

	text, ok := c.transcribe(ctx, "final", samples)
	if !ok || text == "" {
		return ""
	}

	c.metrics.RecordUtterance(duration.Seconds())
	line := caption.Format(text, c.cache.Lines(), c.cfg.LineWidth)
	c.cache.Add(text)
	c.stats.finals.Add(1)

	c.logger.Info("Final caption",
		slog.String("utterance_id", c.utteranceID),
		slog.String("reason", reason),
		slog.Duration("duration", duration),
		slog.String("text", text))

	c.deliver(ctx, Caption{
		UtteranceID: c.utteranceID,
		Text:        text,
		Line:        line,
		Final:       true,
		Duration:    duration,
		Timestamp:   c.now(),
	})
	return text
}

// refreshPartial transcribes the unfinished utterance for display only
func (c *Controller) refreshPartial(ctx context.Context) string {
	samples := c.utterance.Samples()
	text, ok := c.transcribe(ctx, "partial", samples)
	if !ok || text == "" {
		c.emptyStreak++
		return ""
	}
	c.emptyStreak = 0
	c.stats.partials.Add(1)

	c.deliver(ctx, Caption{
		UtteranceID: c.utteranceID,
		Text:        text,
		Line:        caption.Format(text, c.cache.Lines(), c.cfg.LineWidth),
		Duration:    audio.SamplesDuration(len(samples), c.cfg.SampleRate),
		Timestamp:   c.now(),
	})
	return text
}

// transcribe calls the engine. Failures are logged and reported as not ok.
func (c *Controller) transcribe(ctx context.Context, kind string, samples []float32) (string, bool) {
	start := time.Now()
	text, err := c.engine.Transcribe(ctx, samples, c.cfg.SampleRate)
	text = caption.Normalize(text)
	c.metrics.RecordTranscription(kind, time.Since(start).Seconds(), text == "", err)

	if err != nil {
		c.stats.failures.Add(1)
		c.logger.Warn("Transcription failed",
			slog.String("kind", kind),
			slog.String("utterance_id", c.utteranceID),
			slog.Int("samples", len(samples)),
			slog.String("error", err.Error()))
		return "", false
	}
	return text, true
}

func (c *Controller) deliver(ctx context.Context, msg Caption) {
	for _, out := range c.outputs {
		if err := out.Deliver(ctx, msg); err != nil {
			c.logger.Warn("Caption output failed",
				slog.String("utterance_id", msg.UtteranceID),
				slog.Bool("final", msg.Final),
				slog.String("error", err.Error()))
		}
	}
}

// State returns the current state. Consumer goroutine only.
func (c *Controller) State() State { return c.state }

// BufferedSamples returns the utterance length. Consumer goroutine only.
func (c *Controller) BufferedSamples() int { return c.utterance.Len() }

// LookbackSamples returns the lookback window length. Consumer goroutine only.
func (c *Controller) LookbackSamples() int { return c.lookback.Len() }

// EmptyStreak returns the consecutive empty partial count. Consumer goroutine only.
func (c *Controller) EmptyStreak() int { return c.emptyStreak }

// Captions returns the cached recent final captions. Consumer goroutine only.
func (c *Controller) Captions() []string { return c.cache.Lines() }

// GetStats returns controller statistics. Safe from any goroutine.
func (c *Controller) GetStats() ControllerStats {
	state := StateIdle
	if c.stats.recording.Load() {
		state = StateRecording
	}
	return ControllerStats{
		State:          state.String(),
		Chunks:         c.stats.chunks.Load(),
		Utterances:     c.stats.starts.Load(),
		Partials:       c.stats.partials.Load(),
		Finals:         c.stats.finals.Load(),
		CapFinalizes:   c.stats.caps.Load(),
		Aborts:         c.stats.aborts.Load(),
		SkippedShort:   c.stats.skipped.Load(),
		EngineFailures: c.stats.failures.Load(),
	}
}

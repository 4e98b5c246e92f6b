package prompt

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/livecaption/internal/metrics"
)

// DefaultQuietPeriod is how long finals must stop arriving before the
// aggregate is sent
const DefaultQuietPeriod = 5 * time.Second

const pollInterval = 200 * time.Millisecond

// Pipeline aggregates final utterances and sends them as one prompt once the
// speaker has been quiet for the configured period. Sends happen on the
// pipeline's own goroutine.
type Pipeline struct {
	sender     Sender
	quiet      time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	onResponse func(prompt, response string)
	now        func() time.Time
	interval   time.Duration

	mu          sync.Mutex
	pending     []string
	lastUpdated time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithResponseHandler is called with every prompt and its reply
func WithResponseHandler(fn func(prompt, response string)) Option {
	return func(p *Pipeline) { p.onResponse = fn }
}

// WithPollInterval changes how often the quiet period is checked
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// NewPipeline starts the aggregation goroutine
func NewPipeline(sender Sender, quiet time.Duration, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Pipeline {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pipeline{
		sender:   sender,
		quiet:    quiet,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		interval: pollInterval,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Add appends a final utterance to the pending prompt
func (p *Pipeline) Add(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	p.mu.Lock()
	p.pending = append(p.pending, text)
	p.lastUpdated = p.now()
	p.mu.Unlock()
}

// Pending returns the number of utterances waiting to be sent
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if prompt, ok := p.takeIfQuiet(); ok {
				p.send(p.ctx, prompt)
			}
		}
	}
}

// takeIfQuiet removes and returns the aggregate once the quiet period passed
func (p *Pipeline) takeIfQuiet() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 || p.now().Sub(p.lastUpdated) <= p.quiet {
		return "", false
	}
	return p.take(), true
}

// take must be called with mu held
func (p *Pipeline) take() string {
	prompt := strings.Join(p.pending, " ")
	p.pending = nil
	p.lastUpdated = time.Time{}
	return prompt
}

func (p *Pipeline) send(ctx context.Context, prompt string) {
	p.logger.Info("Sending prompt", slog.Int("length", len(prompt)))

	response, err := p.sender.Send(ctx, prompt)
	if err != nil {
		p.metrics.RecordPrompt("error")
		p.logger.Warn("Prompt request failed", slog.String("error", err.Error()))
		return
	}
	if response == "" {
		p.metrics.RecordPrompt("empty")
	} else {
		p.metrics.RecordPrompt("sent")
	}

	p.logger.Info("Prompt response", slog.String("response", response))
	if p.onResponse != nil {
		p.onResponse(prompt, response)
	}
}

// Close stops the goroutine and sends whatever is still pending, bounded by
// ctx
func (p *Pipeline) Close(ctx context.Context) error {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()

		p.mu.Lock()
		var prompt string
		if len(p.pending) > 0 {
			prompt = p.take()
		}
		p.mu.Unlock()

		if prompt != "" {
			p.send(ctx, prompt)
		}
	})
	return nil
}

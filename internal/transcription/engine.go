package transcription

import (
	"context"
	"fmt"
	"time"
)

// MinAudioDuration is the shortest audio an engine will transcribe. Shorter
// input yields empty text without error.
const MinAudioDuration = 200 * time.Millisecond

// WarmupDuration is the length of the silent clip used to warm up an engine
const WarmupDuration = 500 * time.Millisecond

// Engine converts mono float32 samples into text. Implementations need not be
// reentrant; the pipeline calls them from a single goroutine.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Func adapts a plain function into an Engine. The short-audio rule is
// applied before the function is called.
type Func func(ctx context.Context, samples []float32, sampleRate int) (string, error)

// Transcribe implements Engine
func (f Func) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if TooShort(len(samples), sampleRate) {
		return "", nil
	}
	return f(ctx, samples, sampleRate)
}

// TooShort reports whether n samples at sampleRate fall under MinAudioDuration
func TooShort(n, sampleRate int) bool {
	if sampleRate <= 0 {
		return true
	}
	return time.Duration(n)*time.Second < MinAudioDuration*time.Duration(sampleRate)
}

// Warmup runs the engine once over half a second of silence so that model
// loading happens before the first utterance
func Warmup(ctx context.Context, engine Engine, sampleRate int) error {
	n := int(WarmupDuration * time.Duration(sampleRate) / time.Second)
	if _, err := engine.Transcribe(ctx, make([]float32, n), sampleRate); err != nil {
		return fmt.Errorf("engine warm-up failed: %w", err)
	}
	return nil
}

//go:build whisper_cpp

package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/skypro1111/livecaption/internal/audio"
)

// whisperSampleRate is the only rate the model accepts
const whisperSampleRate = 16000

// Whisper is the whisper.cpp-backed Engine
type Whisper struct {
	model    whisperpkg.Model
	threads  uint
	language string
	logger   *slog.Logger
	mu       sync.Mutex // whisper.cpp contexts must not be used concurrently
}

// NewWhisper loads a ggml model from disk
func NewWhisper(cfg WhisperConfig, logger *slog.Logger) (*Whisper, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("whisper model path cannot be empty")
	}

	m, err := whisperpkg.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	language := cfg.Language
	if language == "" {
		language = "auto"
	}

	logger.Info("Whisper model loaded",
		slog.String("model", cfg.ModelPath),
		slog.Uint64("threads", uint64(cfg.Threads)),
		slog.String("language", language))

	return &Whisper{
		model:    m,
		threads:  cfg.Threads,
		language: language,
		logger:   logger,
	}, nil
}

// Transcribe implements Engine
func (w *Whisper) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if TooShort(len(samples), sampleRate) {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if sampleRate != whisperSampleRate {
		samples = audio.ResampleLinear(samples, sampleRate, whisperSampleRate)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}

	if w.threads > 0 {
		wctx.SetThreads(w.threads)
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		return "", fmt.Errorf("set language %q: %w", w.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Warn("Error reading whisper segment", slog.String("error", err.Error()))
			}
			break
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}

	return strings.Join(segments, " "), nil
}

// Close releases the model
func (w *Whisper) Close() error {
	return w.model.Close()
}

//go:build !whisper_cpp

package transcription

import (
	"context"
	"errors"
	"log/slog"
)

// ErrWhisperUnavailable is returned when the binary was built without whisper.cpp
var ErrWhisperUnavailable = errors.New("whisper.cpp engine not compiled in (build with -tags whisper_cpp)")

// Whisper is unavailable in this build
type Whisper struct{}

// NewWhisper always fails without the whisper_cpp build tag
func NewWhisper(cfg WhisperConfig, logger *slog.Logger) (*Whisper, error) {
	return nil, ErrWhisperUnavailable
}

// Transcribe implements Engine
func (w *Whisper) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	return "", ErrWhisperUnavailable
}

// Close is a no-op
func (w *Whisper) Close() error { return nil }

//go:build !whisper_cpp

package transcription

import (
	"errors"
	"testing"
)

func TestNewWhisperUnavailable(t *testing.T) {
	_, err := NewWhisper(WhisperConfig{ModelPath: "models/ggml-base.en.bin"}, testLogger())
	if !errors.Is(err, ErrWhisperUnavailable) {
		t.Errorf("Expected ErrWhisperUnavailable, got %v", err)
	}
}

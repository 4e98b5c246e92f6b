package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skypro1111/livecaption/internal/config"
)

// openFilesUnder lists the targets of this process's descriptors inside dir
func openFilesUnder(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("Descriptor listing unavailable: %v", err)
	}

	var open []string
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name()))
		if err != nil {
			continue
		}
		if strings.HasPrefix(target, dir) {
			open = append(open, target)
		}
	}
	return open
}

func TestRunClosesTranscriptOnStartupError(t *testing.T) {
	transcriber := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":""}`)
	}))
	defer transcriber.Close()

	outDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve output dir: %v", err)
	}

	cfg := config.Default()
	cfg.Transcription.Endpoint = transcriber.URL
	cfg.Source.Type = "file"
	cfg.Source.File = filepath.Join(outDir, "missing.wav")
	cfg.Captions.OutputDir = outDir
	cfg.Captions.Display = false
	cfg.HTTP.Enabled = false
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	err = run(cfg, logger)
	if err == nil {
		t.Fatal("Expected an error for a missing audio file")
	}
	if !strings.Contains(err.Error(), "failed to open audio file") {
		t.Errorf("Expected audio file error, got %v", err)
	}

	transcripts, _ := filepath.Glob(filepath.Join(outDir, "transcription_*.txt"))
	if len(transcripts) != 1 {
		t.Fatalf("Expected 1 transcript file, got %d", len(transcripts))
	}
	if open := openFilesUnder(t, outDir); len(open) != 0 {
		t.Errorf("Expected transcript to be closed, still open: %v", open)
	}
}

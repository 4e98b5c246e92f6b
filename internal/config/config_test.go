package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "sample rate too low",
			mutate:  func(c *Config) { c.Audio.SampleRate = 4000 },
			wantErr: "sample_rate",
		},
		{
			name:    "chunk size too large",
			mutate:  func(c *Config) { c.Audio.ChunkSize = 16384 },
			wantErr: "chunk_size",
		},
		{
			name:    "negative lookback",
			mutate:  func(c *Config) { c.Audio.LookbackChunks = -1 },
			wantErr: "lookback_chunks",
		},
		{
			name:   "zero lookback",
			mutate: func(c *Config) { c.Audio.LookbackChunks = 0 },
		},
		{
			name:    "empty queue",
			mutate:  func(c *Config) { c.Audio.QueueSize = 0 },
			wantErr: "queue_size",
		},
		{
			name:    "vad threshold out of range",
			mutate:  func(c *Config) { c.VAD.Threshold = 1.5 },
			wantErr: "threshold",
		},
		{
			name:    "zero min silence",
			mutate:  func(c *Config) { c.VAD.MinSilenceDuration = 0 },
			wantErr: "min_silence_duration",
		},
		{
			name:    "smoothing out of range",
			mutate:  func(c *Config) { c.VAD.Smoothing = 2 },
			wantErr: "smoothing",
		},
		{
			name:    "short line length",
			mutate:  func(c *Config) { c.Captions.MaxLineLength = 5 },
			wantErr: "max_line_length",
		},
		{
			name:    "empty output dir",
			mutate:  func(c *Config) { c.Captions.OutputDir = "" },
			wantErr: "output_dir",
		},
		{
			name:    "min utterance above cap",
			mutate:  func(c *Config) { c.Captions.MinUtteranceDuration = 30 },
			wantErr: "min_utterance_duration",
		},
		{
			name:    "zero empty partial budget",
			mutate:  func(c *Config) { c.Captions.MaxEmptyPartials = 0 },
			wantErr: "max_empty_partials",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Transcription.Backend = "vosk" },
			wantErr: "backend",
		},
		{
			name:    "whisper without model",
			mutate:  func(c *Config) { c.Transcription.Backend = "whisper" },
			wantErr: "model_path",
		},
		{
			name: "whisper with model",
			mutate: func(c *Config) {
				c.Transcription.Backend = "whisper"
				c.Transcription.ModelPath = "models/ggml-base.en.bin"
			},
		},
		{
			name:    "http without endpoint",
			mutate:  func(c *Config) { c.Transcription.Endpoint = "" },
			wantErr: "endpoint",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Transcription.MaxConcurrent = 0 },
			wantErr: "max_concurrent",
		},
		{
			name:    "unknown source",
			mutate:  func(c *Config) { c.Source.Type = "alsa" },
			wantErr: "type",
		},
		{
			name:    "file source without path",
			mutate:  func(c *Config) { c.Source.Type = "file" },
			wantErr: "file cannot be empty",
		},
		{
			name:    "small udp buffer",
			mutate:  func(c *Config) { c.Source.BufferSize = 100 },
			wantErr: "buffer_size",
		},
		{
			name:    "invalid http port",
			mutate:  func(c *Config) { c.HTTP.Port = 70000 },
			wantErr: "http port",
		},
		{
			name: "disabled http skips checks",
			mutate: func(c *Config) {
				c.HTTP.Enabled = false
				c.HTTP.Port = 0
			},
		},
		{
			name: "prompt without model",
			mutate: func(c *Config) {
				c.Prompt.Enabled = true
				c.Prompt.Model = ""
			},
			wantErr: "model cannot be empty",
		},
		{
			name: "prompt zero quiet period",
			mutate: func(c *Config) {
				c.Prompt.Enabled = true
				c.Prompt.QuietPeriod = 0
			},
			wantErr: "quiet_period",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tests := []struct {
		name       string
		configYAML string
		wantErr    bool
		check      func(t *testing.T, c *Config)
	}{
		{
			name: "partial file keeps defaults",
			configYAML: `
audio:
  lookback_chunks: 4
captions:
  max_speech_duration: 10
  stop_phrase: "halt"
`,
			check: func(t *testing.T, c *Config) {
				if c.Audio.LookbackChunks != 4 {
					t.Errorf("Expected lookback 4, got %d", c.Audio.LookbackChunks)
				}
				if c.Audio.ChunkSize != 512 {
					t.Errorf("Expected default chunk size, got %d", c.Audio.ChunkSize)
				}
				if c.Captions.GetMaxSpeechDuration() != 10*time.Second {
					t.Errorf("Expected 10s cap, got %v", c.Captions.GetMaxSpeechDuration())
				}
				if c.Captions.StopPhrase != "halt" {
					t.Errorf("Expected stop phrase override, got %q", c.Captions.StopPhrase)
				}
				if c.Captions.Banner != "[+] Converse rn!" {
					t.Errorf("Expected default banner, got %q", c.Captions.Banner)
				}
			},
		},
		{
			name: "file source",
			configYAML: `
source:
  type: file
  file: testdata/hello.wav
  realtime: true
transcription:
  backend: whisper
  model_path: models/ggml-base.en.bin
  threads: 2
`,
			check: func(t *testing.T, c *Config) {
				if c.Source.Type != "file" || !c.Source.Realtime {
					t.Errorf("Unexpected source %+v", c.Source)
				}
				if c.Transcription.Threads != 2 {
					t.Errorf("Expected 2 threads, got %d", c.Transcription.Threads)
				}
			},
		},
		{
			name: "invalid values",
			configYAML: `
vad:
  threshold: 0
`,
			wantErr: true,
		},
		{
			name:       "malformed yaml",
			configYAML: "audio: [unterminated",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}

			cfg, err := Load(configPath)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	if got := cfg.VAD.GetMinSilenceDuration(); got != 300*time.Millisecond {
		t.Errorf("Expected 300ms min silence, got %v", got)
	}
	if got := cfg.VAD.GetPreSpeechDuration(); got != 300*time.Millisecond {
		t.Errorf("Expected 300ms pre-speech, got %v", got)
	}
	if got := cfg.Captions.GetMinRefreshInterval(); got != time.Second {
		t.Errorf("Expected 1s refresh, got %v", got)
	}
	if got := cfg.Captions.GetMaxSpeechDuration(); got != 20*time.Second {
		t.Errorf("Expected 20s cap, got %v", got)
	}
	if got := cfg.Transcription.GetTimeoutDuration(); got != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", got)
	}
	if got := cfg.Prompt.GetQuietPeriod(); got != 5*time.Second {
		t.Errorf("Expected 5s quiet period, got %v", got)
	}
}

func TestSanitizedHidesAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Transcription.APIKey = "sk-secret"

	out := cfg.Sanitized()
	if out.Transcription.APIKey != "***" {
		t.Errorf("Expected masked key, got %q", out.Transcription.APIKey)
	}
	if cfg.Transcription.APIKey != "sk-secret" {
		t.Error("Sanitized must not modify the original")
	}
}

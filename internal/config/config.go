package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Captions      CaptionsConfig      `yaml:"captions"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Source        SourceConfig        `yaml:"source"`
	HTTP          HTTPConfig          `yaml:"http"`
	Prompt        PromptConfig        `yaml:"prompt"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains stream framing parameters
type AudioConfig struct {
	SampleRate     int `yaml:"sample_rate"`
	ChunkSize      int `yaml:"chunk_size"`      // samples
	LookbackChunks int `yaml:"lookback_chunks"` // chunks kept while idle
	QueueSize      int `yaml:"queue_size"`      // chunks
}

// VADConfig contains Voice Activity Detection configuration
type VADConfig struct {
	Threshold          float32 `yaml:"threshold"`
	MinSilenceDuration float64 `yaml:"min_silence_duration"` // seconds
	PreSpeechDuration  float64 `yaml:"pre_speech_duration"`  // seconds
	ReferenceLevel     float32 `yaml:"reference_level"`
	Smoothing          float32 `yaml:"smoothing"`
}

// CaptionsConfig contains segmentation, refresh and output parameters
type CaptionsConfig struct {
	MaxLineLength        int     `yaml:"max_line_length"`
	OutputDir            string  `yaml:"output_dir"`
	PersistPartials      bool    `yaml:"persist_partials"`
	Display              bool    `yaml:"display"`
	MaxSpeechDuration    float64 `yaml:"max_speech_duration"`    // seconds
	MinRefreshInterval   float64 `yaml:"min_refresh_interval"`   // seconds
	MinUtteranceDuration float64 `yaml:"min_utterance_duration"` // seconds
	MaxEmptyPartials     int     `yaml:"max_empty_partials"`
	StopPhrase           string  `yaml:"stop_phrase"`
	Banner               string  `yaml:"banner"`
}

// TranscriptionConfig selects and configures the transcription engine
type TranscriptionConfig struct {
	Backend       string  `yaml:"backend"` // http or whisper
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	Language      string  `yaml:"language"`
	Prompt        string  `yaml:"prompt"`
	Temperature   float32 `yaml:"temperature"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	ModelPath     string  `yaml:"model_path"` // whisper backend
	Threads       int     `yaml:"threads"`    // whisper backend
}

// SourceConfig selects where audio comes from
type SourceConfig struct {
	Type          string `yaml:"type"` // udp or file
	ListenAddress string `yaml:"listen_address"`
	BufferSize    int    `yaml:"buffer_size"`
	ReorderWindow int    `yaml:"reorder_window"` // packets
	File          string `yaml:"file"`
	Realtime      bool   `yaml:"realtime"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// PromptConfig configures forwarding of finished utterances to a language model
type PromptConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	Model        string  `yaml:"model"`
	System       string  `yaml:"system"`
	QuietPeriod  float64 `yaml:"quiet_period"`  // seconds
	Timeout      int     `yaml:"timeout"`       // seconds
	ReadyTimeout int     `yaml:"ready_timeout"` // seconds, 0 skips the check
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:     16000,
			ChunkSize:      512,
			LookbackChunks: 8,
			QueueSize:      1024,
		},
		VAD: VADConfig{
			Threshold:          0.6,
			MinSilenceDuration: 0.3,
			PreSpeechDuration:  0.3,
			ReferenceLevel:     0.1,
			Smoothing:          0.5,
		},
		Captions: CaptionsConfig{
			MaxLineLength:        80,
			OutputDir:            "./bin",
			Display:              true,
			MaxSpeechDuration:    20,
			MinRefreshInterval:   1.0,
			MinUtteranceDuration: 0.3,
			MaxEmptyPartials:     3,
			StopPhrase:           "stop recording",
			Banner:               "[+] Converse rn!",
		},
		Transcription: TranscriptionConfig{
			Backend:       "http",
			Endpoint:      "http://localhost:8000/v1/audio/transcriptions",
			Model:         "whisper-1",
			Language:      "en",
			Timeout:       30,
			MaxRetries:    2,
			MaxConcurrent: 1,
			Threads:       4,
		},
		Source: SourceConfig{
			Type:          "udp",
			ListenAddress: "0.0.0.0:4444",
			BufferSize:    65536,
			ReorderWindow: 20,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    8080,
		},
		Prompt: PromptConfig{
			Enabled:      false,
			Endpoint:     "http://localhost:11434",
			Model:        "llama3",
			QuietPeriod:  5,
			Timeout:      60,
			ReadyTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, config.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Captions.Validate(); err != nil {
		return fmt.Errorf("captions config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Prompt.Validate(); err != nil {
		return fmt.Errorf("prompt config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.ChunkSize < 64 || a.ChunkSize > 8192 {
		return fmt.Errorf("chunk_size must be between 64 and 8192 samples, got %d", a.ChunkSize)
	}

	if a.LookbackChunks < 0 {
		return fmt.Errorf("lookback_chunks cannot be negative, got %d", a.LookbackChunks)
	}

	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", a.QueueSize)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold <= 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %f", v.Threshold)
	}

	if v.MinSilenceDuration <= 0 {
		return fmt.Errorf("min_silence_duration must be positive, got %f", v.MinSilenceDuration)
	}

	if v.PreSpeechDuration < 0 {
		return fmt.Errorf("pre_speech_duration cannot be negative, got %f", v.PreSpeechDuration)
	}

	if v.ReferenceLevel < 0 {
		return fmt.Errorf("reference_level cannot be negative, got %f", v.ReferenceLevel)
	}

	if v.Smoothing < 0 || v.Smoothing > 1 {
		return fmt.Errorf("smoothing must be between 0 and 1, got %f", v.Smoothing)
	}

	return nil
}

// Validate validates caption configuration
func (c *CaptionsConfig) Validate() error {
	if c.MaxLineLength < 10 {
		return fmt.Errorf("max_line_length must be at least 10, got %d", c.MaxLineLength)
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	if c.MaxSpeechDuration <= 0 {
		return fmt.Errorf("max_speech_duration must be positive, got %f", c.MaxSpeechDuration)
	}

	if c.MinRefreshInterval <= 0 {
		return fmt.Errorf("min_refresh_interval must be positive, got %f", c.MinRefreshInterval)
	}

	if c.MinUtteranceDuration < 0 {
		return fmt.Errorf("min_utterance_duration cannot be negative, got %f", c.MinUtteranceDuration)
	}

	if c.MinUtteranceDuration >= c.MaxSpeechDuration {
		return fmt.Errorf("min_utterance_duration (%f) must be less than max_speech_duration (%f)",
			c.MinUtteranceDuration, c.MaxSpeechDuration)
	}

	if c.MaxEmptyPartials < 1 {
		return fmt.Errorf("max_empty_partials must be at least 1, got %d", c.MaxEmptyPartials)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Backend {
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http backend")
		}
	case "whisper":
		if t.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty for the whisper backend")
		}
		if t.Threads < 1 {
			return fmt.Errorf("threads must be at least 1, got %d", t.Threads)
		}
	default:
		return fmt.Errorf("backend must be 'http' or 'whisper', got '%s'", t.Backend)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.Temperature < 0 || t.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", t.Temperature)
	}

	return nil
}

// Validate validates source configuration
func (s *SourceConfig) Validate() error {
	switch s.Type {
	case "udp":
		if s.ListenAddress == "" {
			return fmt.Errorf("listen_address cannot be empty for the udp source")
		}
		if s.BufferSize < 1024 {
			return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
		}
		if s.ReorderWindow < 0 {
			return fmt.Errorf("reorder_window cannot be negative, got %d", s.ReorderWindow)
		}
	case "file":
		if s.File == "" {
			return fmt.Errorf("file cannot be empty for the file source")
		}
	default:
		return fmt.Errorf("type must be 'udp' or 'file', got '%s'", s.Type)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if !h.Enabled {
		return nil
	}

	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty when HTTP is enabled")
	}

	return nil
}

// Validate validates prompt configuration
func (p *PromptConfig) Validate() error {
	if !p.Enabled {
		return nil
	}

	if p.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when prompts are enabled")
	}

	if p.Model == "" {
		return fmt.Errorf("model cannot be empty when prompts are enabled")
	}

	if p.QuietPeriod <= 0 {
		return fmt.Errorf("quiet_period must be positive, got %f", p.QuietPeriod)
	}

	if p.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", p.Timeout)
	}

	if p.ReadyTimeout < 0 {
		return fmt.Errorf("ready_timeout cannot be negative, got %d", p.ReadyTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout or stderr is a file path
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// Sanitized returns a copy safe to expose over HTTP
func (c *Config) Sanitized() Config {
	out := *c
	if out.Transcription.APIKey != "" {
		out.Transcription.APIKey = "***"
	}
	return out
}

// seconds converts float seconds into a time.Duration
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// GetMinSilenceDuration returns the minimum silence duration as a time.Duration
func (v *VADConfig) GetMinSilenceDuration() time.Duration {
	return seconds(v.MinSilenceDuration)
}

// GetPreSpeechDuration returns the pre-speech window as a time.Duration
func (v *VADConfig) GetPreSpeechDuration() time.Duration {
	return seconds(v.PreSpeechDuration)
}

// GetMaxSpeechDuration returns the utterance cap as a time.Duration
func (c *CaptionsConfig) GetMaxSpeechDuration() time.Duration {
	return seconds(c.MaxSpeechDuration)
}

// GetMinRefreshInterval returns the partial refresh interval as a time.Duration
func (c *CaptionsConfig) GetMinRefreshInterval() time.Duration {
	return seconds(c.MinRefreshInterval)
}

// GetMinUtteranceDuration returns the shortest finalized utterance as a time.Duration
func (c *CaptionsConfig) GetMinUtteranceDuration() time.Duration {
	return seconds(c.MinUtteranceDuration)
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetQuietPeriod returns the prompt quiet period as a time.Duration
func (p *PromptConfig) GetQuietPeriod() time.Duration {
	return seconds(p.QuietPeriod)
}

// GetTimeoutDuration returns the prompt request timeout as a time.Duration
func (p *PromptConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}

// GetReadyTimeout returns how long to wait for the prompt endpoint at startup
func (p *PromptConfig) GetReadyTimeout() time.Duration {
	return time.Duration(p.ReadyTimeout) * time.Second
}

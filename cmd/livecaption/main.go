package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/livecaption/internal/broadcast"
	"github.com/skypro1111/livecaption/internal/caption"
	"github.com/skypro1111/livecaption/internal/config"
	"github.com/skypro1111/livecaption/internal/metrics"
	"github.com/skypro1111/livecaption/internal/prompt"
	"github.com/skypro1111/livecaption/internal/server"
	"github.com/skypro1111/livecaption/internal/source"
	"github.com/skypro1111/livecaption/internal/stream"
	"github.com/skypro1111/livecaption/internal/transcription"
	"github.com/skypro1111/livecaption/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "livecaption"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("source", cfg.Source.Type),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("chunk_size", cfg.Audio.ChunkSize),
		slog.Int("lookback_chunks", cfg.Audio.LookbackChunks),
		slog.Float64("vad_threshold", float64(cfg.VAD.Threshold)),
		slog.Duration("max_speech", cfg.Captions.GetMaxSpeechDuration()),
		slog.Duration("min_refresh", cfg.Captions.GetMinRefreshInterval()),
		slog.String("transcription_backend", cfg.Transcription.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Cancelled by a signal or by the stop phrase
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	engine, closeEngine, err := newEngine(cfg.Transcription, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	warmupStart := time.Now()
	if err := transcription.Warmup(ctx, engine, cfg.Audio.SampleRate); err != nil {
		return err
	}
	logger.Info("Transcription engine ready", slog.Duration("warmup", time.Since(warmupStart)))

	sink, err := caption.NewFileSink(cfg.Captions.OutputDir, cfg.Captions.PersistPartials, nil)
	if err != nil {
		return err
	}
	logger.Info("Transcript file created", slog.String("path", sink.Path()))

	hub := broadcast.NewHub(logger, appMetrics)

	// The pipeline closes the outputs once it drains. Returns before Run
	// close them here.
	var prompts *prompt.Pipeline
	outputsOwned := false
	defer func() {
		if !outputsOwned {
			closeOutputs(sink, hub, prompts, cfg.Prompt.GetTimeoutDuration(), logger)
		}
	}()

	outputs := []stream.Output{
		stream.TranscriptOutput{Sink: sink, Metrics: appMetrics},
		stream.HubOutput{Hub: hub},
	}

	var display *caption.Display
	if cfg.Captions.Display {
		display = caption.NewDisplay(os.Stdout)
		outputs = append(outputs, stream.DisplayOutput{Display: display})
	}

	if cfg.Prompt.Enabled {
		prompts, err = newPromptPipeline(ctx, cfg.Prompt, logger, appMetrics)
		if err != nil {
			return err
		}
		outputs = append(outputs, stream.FinalsOutput{Target: prompts})
	}

	if cfg.Captions.StopPhrase != "" {
		outputs = append(outputs, stream.NewStopPhraseOutput(cfg.Captions.StopPhrase, func() {
			logger.Info("Stop phrase heard, shutting down", slog.String("phrase", cfg.Captions.StopPhrase))
			cancel()
		}))
	}

	src, sourceStats, err := newSource(cfg, logger, appMetrics)
	if err != nil {
		return err
	}

	detector, err := vad.NewEnergyDetector(vad.EnergyConfig{
		SampleRate:     cfg.Audio.SampleRate,
		Threshold:      cfg.VAD.Threshold,
		MinSilence:     cfg.VAD.GetMinSilenceDuration(),
		ReferenceLevel: cfg.VAD.ReferenceLevel,
		Smoothing:      cfg.VAD.Smoothing,
	})
	if err != nil {
		return fmt.Errorf("failed to create voice activity detector: %w", err)
	}
	preSpeech := int(cfg.VAD.GetPreSpeechDuration() * time.Duration(cfg.Audio.SampleRate) / time.Second)
	gate := vad.NewGate(detector, preSpeech)

	controller, err := stream.NewController(stream.ControllerConfig{
		SampleRate:       cfg.Audio.SampleRate,
		ChunkSize:        cfg.Audio.ChunkSize,
		LookbackChunks:   cfg.Audio.LookbackChunks,
		MaxSpeech:        cfg.Captions.GetMaxSpeechDuration(),
		MinRefresh:       cfg.Captions.GetMinRefreshInterval(),
		MinUtterance:     cfg.Captions.GetMinUtteranceDuration(),
		MaxEmptyPartials: cfg.Captions.MaxEmptyPartials,
		LineWidth:        cfg.Captions.MaxLineLength,
	}, gate, engine, logger, appMetrics, stream.WithOutputs(outputs...))
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	pipeline := stream.NewPipeline(src, controller, cfg.Audio.QueueSize, logger, appMetrics)
	pipeline.OnDrained("transcript", sink.Close)
	if prompts != nil {
		pipeline.OnDrained("prompt", func() error {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.Prompt.GetTimeoutDuration())
			defer flushCancel()
			return prompts.Close(flushCtx)
		})
	}
	pipeline.OnDrained("captions_ws", func() error {
		hub.Close()
		return nil
	})

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, server.Deps{
			Config:      cfg,
			Pipeline:    pipeline,
			Transcript:  sink,
			Hub:         hub,
			Detector:    detector,
			SourceStats: sourceStats,
		}, logger, appMetrics)
		if err := httpServer.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpServer.Stop(shutdownCtx); err != nil {
				logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	if display != nil {
		display.Banner(cfg.Captions.Banner)
	}
	logger.Info(cfg.Captions.Banner)

	outputsOwned = true
	if err := pipeline.Run(ctx); err != nil {
		return err
	}

	stats := pipeline.GetStats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("chunks_received", stats.ChunksReceived),
		slog.Uint64("chunks_dropped", stats.ChunksDropped),
		slog.Uint64("utterances", stats.Controller.Utterances),
		slog.Uint64("finals", stats.Controller.Finals),
		slog.Uint64("engine_failures", stats.Controller.EngineFailures),
		slog.String("transcript", sink.Path()),
	)

	return nil
}

// closeOutputs releases outputs the pipeline never took over
func closeOutputs(sink *caption.FileSink, hub *broadcast.Hub, prompts *prompt.Pipeline, timeout time.Duration, logger *slog.Logger) {
	hub.Close()
	if prompts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := prompts.Close(ctx); err != nil {
			logger.Warn("Error closing prompt pipeline", slog.String("error", err.Error()))
		}
	}
	if err := sink.Close(); err != nil {
		logger.Warn("Error closing transcript", slog.String("error", err.Error()))
	}
}

// newEngine builds the configured transcription backend
func newEngine(cfg config.TranscriptionConfig, logger *slog.Logger) (transcription.Engine, func() error, error) {
	switch cfg.Backend {
	case "whisper":
		w, err := transcription.NewWhisper(transcription.WhisperConfig{
			ModelPath: cfg.ModelPath,
			Language:  cfg.Language,
			Threads:   uint(cfg.Threads),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load whisper model: %w", err)
		}
		return w, w.Close, nil
	default:
		c, err := transcription.NewClient(transcription.Config{
			Endpoint:      cfg.Endpoint,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			Language:      cfg.Language,
			Prompt:        cfg.Prompt,
			Temperature:   cfg.Temperature,
			Timeout:       cfg.GetTimeoutDuration(),
			MaxRetries:    cfg.MaxRetries,
			MaxConcurrent: cfg.MaxConcurrent,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create transcription client: %w", err)
		}
		return c, c.Close, nil
	}
}

// newSource builds the configured chunk source and its stats reporter
func newSource(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (source.Source, func() any, error) {
	switch cfg.Source.Type {
	case "file":
		f, err := source.NewFile(source.FileConfig{
			Path:       cfg.Source.File,
			ChunkSize:  cfg.Audio.ChunkSize,
			SampleRate: cfg.Audio.SampleRate,
			Realtime:   cfg.Source.Realtime,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return f, func() any { return map[string]string{"type": "file", "path": cfg.Source.File} }, nil
	default:
		u, err := source.NewUDP(source.UDPConfig{
			ListenAddr:    cfg.Source.ListenAddress,
			BufferSize:    cfg.Source.BufferSize,
			ChunkSize:     cfg.Audio.ChunkSize,
			SampleRate:    cfg.Audio.SampleRate,
			ReorderWindow: uint32(cfg.Source.ReorderWindow),
		}, logger, m)
		if err != nil {
			return nil, nil, err
		}
		return u, func() any { return u.GetStats() }, nil
	}
}

// newPromptPipeline connects to the language model endpoint. An endpoint
// that does not come up is logged, not fatal.
func newPromptPipeline(ctx context.Context, cfg config.PromptConfig, logger *slog.Logger, m *metrics.Metrics) (*prompt.Pipeline, error) {
	client, err := prompt.NewOllama(prompt.OllamaConfig{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		System:   cfg.System,
		Timeout:  cfg.GetTimeoutDuration(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt client: %w", err)
	}

	if cfg.ReadyTimeout > 0 {
		if err := client.WaitReady(ctx, cfg.GetReadyTimeout()); err != nil {
			logger.Warn("Prompt endpoint not ready", slog.String("error", err.Error()))
		}
	}

	return prompt.NewPipeline(client, cfg.GetQuietPeriod(), logger, m), nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Captions own stdout when the display is on, so logs default to stderr
	var output io.Writer
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/skypro1111/livecaption/internal/audio"
)

// readFrames is how many frames are decoded per read
const readFrames = 4096

// FileConfig configures WAV file playback
type FileConfig struct {
	Path       string
	ChunkSize  int
	SampleRate int
	// Realtime paces chunks at the rate a live microphone would deliver them
	Realtime bool
}

// File replays a WAV file as a chunk stream, then reports exhaustion
type File struct {
	cfg    FileConfig
	logger *slog.Logger
}

// NewFile validates the file header up front so that a bad path fails
// before the pipeline starts
func NewFile(cfg FileConfig, logger *slog.Logger) (*File, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	info, err := audio.GetWAVInfo(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cfg.Path, err)
	}

	logger.Info("Audio file source ready",
		slog.String("path", cfg.Path),
		slog.Int("sample_rate", info.SampleRate),
		slog.Int("channels", info.Channels),
		slog.Int("bits_per_sample", info.BitsPerSample),
		slog.Float64("duration_seconds", info.Duration))

	return &File{cfg: cfg, logger: logger}, nil
}

// Run implements Source
func (s *File) Run(ctx context.Context, emit func(audio.Chunk)) error {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return errors.New("invalid WAV file")
	}

	channels := int(dec.NumChans)
	inRate := int(dec.SampleRate)
	framer := audio.NewFramer(s.cfg.ChunkSize, s.cfg.SampleRate)
	var resampler *audio.Resampler
	if inRate != s.cfg.SampleRate {
		resampler = audio.NewResampler(inRate, s.cfg.SampleRate)
	}
	buf := &goaudio.IntBuffer{Data: make([]int, readFrames*channels)}

	var ticker *time.Ticker
	if s.cfg.Realtime {
		ticker = time.NewTicker(audio.SamplesDuration(s.cfg.ChunkSize, s.cfg.SampleRate))
		defer ticker.Stop()
	}

	send := func(chunk audio.Chunk) error {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		emit(chunk)
		return nil
	}

	var total int
	for {
		n, err := dec.PCMBuffer(buf)
		if n > 0 {
			samples := audio.IntToFloat32(buf.Data[:n], int(dec.BitDepth))
			samples = audio.DownmixInterleaved(samples, channels)
			if resampler != nil {
				samples = resampler.Process(samples)
			}
			total += len(samples)
			framer.Write(samples, 0)

			for _, chunk := range framer.Chunks() {
				if err := send(chunk); err != nil {
					return err
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to decode audio: %w", err)
		}
		if n == 0 {
			break
		}
	}

	if chunk, ok := framer.Flush(); ok {
		// A short tail is expected at the end of a file
		chunk.Status &^= audio.StatusUnderrun
		if err := send(chunk); err != nil {
			return err
		}
	}

	s.logger.Info("Audio file finished",
		slog.String("path", s.cfg.Path),
		slog.Duration("duration", audio.SamplesDuration(total, s.cfg.SampleRate)))
	return nil
}

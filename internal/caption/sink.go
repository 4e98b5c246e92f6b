package caption

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	fileTimeLayout = "20060102_150405"
	lineTimeLayout = "2006-01-02 15:04:05"
)

// FileSink appends caption lines to transcription_YYYYMMDD_HHMMSS.txt.
// Writes come from the pipeline consumer only; Contents may be called
// concurrently from the HTTP API.
type FileSink struct {
	path            string
	file            *os.File
	persistPartials bool
	now             func() time.Time

	finals   uint64
	partials uint64
	closed   bool
	mu       sync.Mutex
}

// SinkStats represents transcript sink statistics
type SinkStats struct {
	Path     string `json:"path"`
	Finals   uint64 `json:"finals"`
	Partials uint64 `json:"partials"`
}

// NewFileSink creates the output directory and a fresh transcript file named
// after the current time
func NewFileSink(dir string, persistPartials bool, now func() time.Time) (*FileSink, error) {
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "transcription_"+now().Format(fileTimeLayout)+".txt")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	return &FileSink{
		path:            path,
		file:            file,
		persistPartials: persistPartials,
		now:             now,
	}, nil
}

// WriteFinal appends a FINAL line. Blank text is ignored.
func (s *FileSink) WriteFinal(text string) error {
	return s.write("FINAL", text)
}

// WritePartial appends a PARTIAL line when partial persistence is enabled
func (s *FileSink) WritePartial(text string) error {
	if !s.persistPartials {
		return nil
	}
	return s.write("PARTIAL", text)
}

func (s *FileSink) write(kind, text string) error {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("transcript sink is closed")
	}

	line := fmt.Sprintf("[%s] [%s] %s\n", kind, s.now().Format(lineTimeLayout), text)
	if _, err := s.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write transcript line: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to flush transcript: %w", err)
	}

	if kind == "FINAL" {
		s.finals++
	} else {
		s.partials++
	}
	return nil
}

// Contents returns the whole transcript written so far
func (s *FileSink) Contents() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return "", fmt.Errorf("failed to read transcript: %w", err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(io.NewSectionReader(s.file, 0, 1<<62))
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return string(data), nil
}

// Path returns the transcript file path
func (s *FileSink) Path() string { return s.path }

// GetStats returns current sink statistics
func (s *FileSink) GetStats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SinkStats{Path: s.path, Finals: s.finals, Partials: s.partials}
}

// Close closes the transcript file. Further writes fail.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

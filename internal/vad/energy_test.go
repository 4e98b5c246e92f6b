package vad

import (
	"math"
	"testing"
	"time"
)

func toneChunk(amplitude float64, n int) []float32 {
	c := make([]float32, n)
	for i := range c {
		c[i] = float32(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return c
}

func TestNewEnergyDetectorValidation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       EnergyConfig
		expectErr bool
	}{
		{"valid", EnergyConfig{SampleRate: 16000, Threshold: 0.6, MinSilence: 300 * time.Millisecond}, false},
		{"threshold too low", EnergyConfig{SampleRate: 16000, Threshold: -0.1}, true},
		{"threshold too high", EnergyConfig{SampleRate: 16000, Threshold: 1.1}, true},
		{"zero sample rate", EnergyConfig{SampleRate: 0, Threshold: 0.5}, true},
		{"negative silence", EnergyConfig{SampleRate: 16000, Threshold: 0.5, MinSilence: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEnergyDetector(tt.cfg)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestEnergyDetectorStartAndEnd(t *testing.T) {
	detector, err := NewEnergyDetector(EnergyConfig{
		SampleRate: 16000,
		Threshold:  0.6,
		MinSilence: 300 * time.Millisecond,
		Smoothing:  1, // No smoothing
	})
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	var boundaries []Boundary
	feed := func(chunk []float32, n int) {
		for i := 0; i < n; i++ {
			if b := detector.Detect(chunk); b != BoundaryNone {
				boundaries = append(boundaries, b)
			}
		}
	}

	silence := make([]float32, 512)
	speech := toneChunk(0.5, 512)

	feed(silence, 10)
	feed(speech, 20)
	// 300ms at 16kHz is 4800 samples, just under 10 chunks
	feed(silence, 8)
	if len(boundaries) != 1 || boundaries[0] != BoundaryStart {
		t.Fatalf("Expected only a start before min silence elapsed, got %v", boundaries)
	}

	feed(silence, 5)
	if len(boundaries) != 2 || boundaries[1] != BoundaryEnd {
		t.Fatalf("Expected start then end, got %v", boundaries)
	}

	stats := detector.GetStats()
	if stats.TotalChunks != 43 {
		t.Errorf("Expected 43 chunks, got %d", stats.TotalChunks)
	}
	if stats.VoiceChunks != 20 {
		t.Errorf("Expected 20 voice chunks, got %d", stats.VoiceChunks)
	}
}

func TestEnergyDetectorBriefPauseDoesNotEnd(t *testing.T) {
	detector, _ := NewEnergyDetector(EnergyConfig{
		SampleRate: 16000,
		Threshold:  0.6,
		MinSilence: 300 * time.Millisecond,
		Smoothing:  1,
	})

	speech := toneChunk(0.5, 512)
	silence := make([]float32, 512)

	if b := detector.Detect(speech); b != BoundaryStart {
		t.Fatalf("Expected start, got %s", b)
	}
	for i := 0; i < 5; i++ {
		if b := detector.Detect(silence); b != BoundaryNone {
			t.Fatalf("Expected no boundary during short pause, got %s", b)
		}
	}
	if b := detector.Detect(speech); b != BoundaryNone {
		t.Fatalf("Expected speech to continue, got %s", b)
	}
}

func TestEnergyDetectorReset(t *testing.T) {
	detector, _ := NewEnergyDetector(EnergyConfig{SampleRate: 16000, Threshold: 0.6, Smoothing: 1})

	speech := toneChunk(0.5, 512)
	detector.Detect(speech)
	detector.Reset()

	// A fresh start is reported again after a reset
	if b := detector.Detect(speech); b != BoundaryStart {
		t.Errorf("Expected start after reset, got %s", b)
	}
	if detector.GetStats().Resets != 1 {
		t.Errorf("Expected 1 reset, got %d", detector.GetStats().Resets)
	}
}

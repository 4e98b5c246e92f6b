package vad

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// EnergyConfig holds the tuning of an EnergyDetector
type EnergyConfig struct {
	SampleRate int
	// Threshold is the speech probability at or above which speech starts
	Threshold float32
	// MinSilence is how long probability must stay below the release
	// threshold before speech ends
	MinSilence time.Duration
	// ReferenceLevel is the RMS level mapped to probability 1.0
	ReferenceLevel float32
	// Smoothing is the weight of the newest chunk in the running probability
	Smoothing float32
}

// EnergyDetector is an RMS energy detector with hysteresis. Speech starts as
// soon as the smoothed probability reaches the threshold and ends after
// MinSilence of probability below threshold-0.15.
type EnergyDetector struct {
	threshold         float32
	releaseThreshold  float32
	referenceLevel    float32
	smoothing         float32
	minSilenceSamples int

	// Detector state
	triggered      bool
	silenceSamples int
	lastProb       float32
	primed         bool

	// Statistics
	totalChunks  atomic.Uint64
	voiceChunks  atomic.Uint64
	resets       atomic.Uint64
	lastProbBits atomic.Uint32
}

// EnergyStats represents detector statistics
type EnergyStats struct {
	TotalChunks     uint64  `json:"total_chunks"`
	VoiceChunks     uint64  `json:"voice_chunks"`
	VoicePercentage float64 `json:"voice_percentage"`
	Resets          uint64  `json:"resets"`
	LastProbability float32 `json:"last_probability"`
	Threshold       float32 `json:"threshold"`
}

// NewEnergyDetector creates a new energy detector
func NewEnergyDetector(cfg EnergyConfig) (*EnergyDetector, error) {
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", cfg.Threshold)
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}

	if cfg.MinSilence < 0 {
		return nil, fmt.Errorf("min silence must not be negative, got %v", cfg.MinSilence)
	}

	if cfg.ReferenceLevel <= 0 {
		cfg.ReferenceLevel = 0.1
	}

	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = 0.5
	}

	release := cfg.Threshold - 0.15
	if release < 0 {
		release = 0
	}

	return &EnergyDetector{
		threshold:         cfg.Threshold,
		releaseThreshold:  release,
		referenceLevel:    cfg.ReferenceLevel,
		smoothing:         cfg.Smoothing,
		minSilenceSamples: int(cfg.MinSilence * time.Duration(cfg.SampleRate) / time.Second),
	}, nil
}

// Detect implements Detector
func (d *EnergyDetector) Detect(chunk []float32) Boundary {
	prob := d.probability(chunk)

	// Apply smoothing
	if d.primed {
		prob = d.smoothing*prob + (1-d.smoothing)*d.lastProb
	}
	d.lastProb = prob
	d.primed = true

	d.totalChunks.Add(1)
	d.lastProbBits.Store(math.Float32bits(prob))

	if prob >= d.threshold {
		d.voiceChunks.Add(1)
		d.silenceSamples = 0
		if !d.triggered {
			d.triggered = true
			return BoundaryStart
		}
		return BoundaryNone
	}

	if d.triggered && prob < d.releaseThreshold {
		d.silenceSamples += len(chunk)
		if d.silenceSamples >= d.minSilenceSamples {
			d.triggered = false
			d.silenceSamples = 0
			return BoundaryEnd
		}
	}

	return BoundaryNone
}

// probability maps chunk RMS energy onto 0..1
func (d *EnergyDetector) probability(chunk []float32) float32 {
	if len(chunk) == 0 {
		return 0
	}

	var energy float64
	for _, s := range chunk {
		energy += float64(s) * float64(s)
	}
	rms := math.Sqrt(energy / float64(len(chunk)))

	p := float32(rms) / d.referenceLevel
	if p > 1 {
		p = 1
	}
	return p
}

// Reset implements Detector
func (d *EnergyDetector) Reset() {
	d.triggered = false
	d.silenceSamples = 0
	d.lastProb = 0
	d.primed = false
	d.resets.Add(1)
}

// GetStats returns current detector statistics. Safe to call from any goroutine.
func (d *EnergyDetector) GetStats() EnergyStats {
	total := d.totalChunks.Load()
	voice := d.voiceChunks.Load()

	voicePercentage := float64(0)
	if total > 0 {
		voicePercentage = float64(voice) / float64(total) * 100
	}

	return EnergyStats{
		TotalChunks:     total,
		VoiceChunks:     voice,
		VoicePercentage: voicePercentage,
		Resets:          d.resets.Load(),
		LastProbability: math.Float32frombits(d.lastProbBits.Load()),
		Threshold:       d.threshold,
	}
}

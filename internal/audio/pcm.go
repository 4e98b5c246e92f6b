package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PCM16ToFloat32 converts little-endian signed 16-bit PCM into samples in [-1, 1)
func PCM16ToFloat32(b []byte) ([]float32, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("audio data length must be even (got %d bytes)", len(b))
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}

// Float32ToPCM16 converts samples to little-endian signed 16-bit PCM,
// clipping anything outside [-1, 1]
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := math.Round(float64(s) * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// ResampleLinear resamples samples from inRate to outRate using linear interpolation
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		return append([]float32(nil), samples...)
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		out[i] = samples[i0] + (samples[i0+1]-samples[i0])*frac
	}
	return out
}

// Resampler converts a stream delivered in pieces, such as network packets,
// from one rate to another. It carries the fractional read position and the
// last input sample across calls, so piece boundaries add neither drift nor
// discontinuities. Not safe for concurrent use.
type Resampler struct {
	step   float64 // input samples per output sample
	pos    float64 // next read position; index 0 is the carried sample
	prev   float32
	primed bool
}

// NewResampler creates a resampler from inRate to outRate
func NewResampler(inRate, outRate int) *Resampler {
	return &Resampler{step: float64(inRate) / float64(outRate)}
}

// Process resamples the next piece of the stream
func (r *Resampler) Process(samples []float32) []float32 {
	if len(samples) == 0 {
		return nil
	}

	// Prefix the carried sample so interpolation can span the boundary
	src := samples
	if r.primed {
		src = make([]float32, 0, len(samples)+1)
		src = append(src, r.prev)
		src = append(src, samples...)
	}

	last := float64(len(src) - 1)
	out := make([]float32, 0, int(last/r.step)+1)
	for ; r.pos < last; r.pos += r.step {
		i0 := int(r.pos)
		frac := float32(r.pos - float64(i0))
		out = append(out, src[i0]+(src[i0+1]-src[i0])*frac)
	}

	r.pos -= last
	r.prev = src[len(src)-1]
	r.primed = true
	return out
}

// DownmixInterleaved averages interleaved multi-channel samples into mono
func DownmixInterleaved(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

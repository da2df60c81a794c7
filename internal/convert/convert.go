// Package convert turns device float32 blocks into the 16 kHz mono int16
// frames decoders consume.
package convert

import (
	"errors"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/rbright/murmur/internal/audio"
)

const (
	// OutputRate is the fixed decoder sample rate.
	OutputRate = 16000
	// Scale maps [-1, 1) floats onto int16.
	Scale = 32768

	minInputRate = 8000
	maxInputRate = 192000
)

// ErrInvalidFormat reports device parameters the converter cannot handle.
var ErrInvalidFormat = errors.New("invalid audio format")

// Converter downmixes, resamples and quantizes successive blocks. It keeps
// resampler state between calls and is not safe for concurrent use.
type Converter struct {
	format    audio.Format
	resampler resampling.Resampler

	mono []float64
}

// New builds a converter for blocks in format.
func New(format audio.Format) (*Converter, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if format.SampleRate < minInputRate || format.SampleRate > maxInputRate {
		return nil, fmt.Errorf("%w: sample rate %d outside %d-%d", ErrInvalidFormat, format.SampleRate, minInputRate, maxInputRate)
	}

	c := &Converter{
		format: format,
		mono:   make([]float64, 0, format.FramesPerBlock),
	}
	if format.SampleRate != OutputRate {
		resampler, err := resampling.New(&resampling.Config{
			InputRate:  float64(format.SampleRate),
			OutputRate: OutputRate,
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: create resampler: %w", ErrInvalidFormat, err)
		}
		c.resampler = resampler
	}
	return c, nil
}

// Format returns the input format the converter was built for.
func (c *Converter) Format() audio.Format {
	return c.format
}

// Convert processes interleaved samples holding whole frames. The output
// length varies from call to call while the resampler fills its window.
// Inputs at or beyond full scale clip to the int16 range.
func (c *Converter) Convert(block []float32) ([]int16, error) {
	ch := c.format.Channels
	if len(block)%ch != 0 {
		return nil, fmt.Errorf("%w: %d samples is not a whole number of %d-channel frames", ErrInvalidFormat, len(block), ch)
	}
	if len(block) == 0 {
		return nil, nil
	}

	c.mono = downmix(c.mono[:0], block, ch)

	samples := c.mono
	if c.resampler != nil {
		out, err := c.resampler.Process(c.mono)
		if err != nil {
			return nil, fmt.Errorf("resample: %w", err)
		}
		samples = out
	}

	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = quantize(s)
	}
	return pcm, nil
}

// downmix averages interleaved channels into dst.
func downmix(dst []float64, block []float32, channels int) []float64 {
	if channels == 1 {
		for _, s := range block {
			dst = append(dst, float64(s))
		}
		return dst
	}
	for i := 0; i < len(block); i += channels {
		var sum float64
		for j := 0; j < channels; j++ {
			sum += float64(block[i+j])
		}
		dst = append(dst, sum/float64(channels))
	}
	return dst
}

// quantize scales by 32768 and truncates toward zero, clipping to int16.
func quantize(s float64) int16 {
	v := int64(s * Scale)
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}

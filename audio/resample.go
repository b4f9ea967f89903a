package audio

import "fmt"

// Resampled returns the clip converted to the target sample rate by linear
// interpolation. The receiver is not modified; when the rate already matches
// the samples are copied so callers own the result either way.
func (c Clip) Resampled(rate int) (Clip, error) {
	if rate <= 0 {
		return Clip{}, fmt.Errorf("target sample rate must be positive, got %d", rate)
	}
	if c.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("clip sample rate must be positive, got %d", c.SampleRate)
	}

	if rate == c.SampleRate {
		return Clip{
			Samples:    append([]float32(nil), c.Samples...),
			SampleRate: rate,
		}, nil
	}
	if len(c.Samples) == 0 {
		return Clip{Samples: []float32{}, SampleRate: rate}, nil
	}

	ratio := float64(c.SampleRate) / float64(rate)
	outLen := int(float64(len(c.Samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(c.Samples)-1 {
			out[i] = c.Samples[len(c.Samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = c.Samples[idx]*(1-frac) + c.Samples[idx+1]*frac
	}

	return Clip{Samples: out, SampleRate: rate}, nil
}

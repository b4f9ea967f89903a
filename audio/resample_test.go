package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestResampledIdentity copies the samples when the rate already matches.
func TestResampledIdentity(t *testing.T) {
	clip := Clip{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 16000}

	out, err := clip.Resampled(16000)
	require.NoError(t, err)
	assert.Equal(t, clip.Samples, out.Samples)
	assert.Equal(t, 16000, out.SampleRate)

	// The result must be an independent copy.
	out.Samples[0] = 9
	assert.Equal(t, float32(0.1), clip.Samples[0])
}

// TestResampledHalvesLength downsampling 2:1 halves the sample count.
func TestResampledHalvesLength(t *testing.T) {
	clip := Clip{Samples: make([]float32, 32000), SampleRate: 32000}

	out, err := clip.Resampled(16000)
	require.NoError(t, err)
	assert.Equal(t, 16000, out.SampleRate)
	assert.Equal(t, 16000, len(out.Samples))
}

// TestResampledPreservesConstantSignal linear interpolation of a constant
// signal is the same constant at any rate.
func TestResampledPreservesConstantSignal(t *testing.T) {
	samples := make([]float32, 4410)
	for i := range samples {
		samples[i] = 0.25
	}
	clip := Clip{Samples: samples, SampleRate: 44100}

	out, err := clip.Resampled(16000)
	require.NoError(t, err)
	require.NotEmpty(t, out.Samples)
	for i, sample := range out.Samples {
		assert.InDelta(t, 0.25, sample, 1e-6, "sample %d", i)
	}

	expectedLen := int(4410.0 * 16000.0 / 44100.0)
	assert.InDelta(t, float64(expectedLen), float64(len(out.Samples)), 1)
}

// TestResampledInterpolatesBetweenSamples checks midpoint interpolation when
// doubling the rate.
func TestResampledInterpolatesBetweenSamples(t *testing.T) {
	clip := Clip{Samples: []float32{0, 1, 0, 1}, SampleRate: 8000}

	out, err := clip.Resampled(16000)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out.Samples), 6)

	assert.InDelta(t, 0.0, out.Samples[0], 1e-6)
	assert.InDelta(t, 0.5, out.Samples[1], 1e-6)
	assert.InDelta(t, 1.0, out.Samples[2], 1e-6)
	assert.InDelta(t, 0.5, out.Samples[3], 1e-6)
}

// TestResampledEmptyClip keeps an empty clip empty at the new rate.
func TestResampledEmptyClip(t *testing.T) {
	out, err := Clip{Samples: nil, SampleRate: 44100}.Resampled(16000)
	require.NoError(t, err)
	assert.Empty(t, out.Samples)
	assert.Equal(t, 16000, out.SampleRate)
}

// TestResampledValidation rejects non-positive rates.
func TestResampledValidation(t *testing.T) {
	_, err := Clip{Samples: []float32{0}, SampleRate: 16000}.Resampled(0)
	require.Error(t, err)

	_, err = Clip{Samples: []float32{0}, SampleRate: 0}.Resampled(16000)
	require.Error(t, err)
}

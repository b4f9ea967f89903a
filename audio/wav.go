// Package audio reads and writes WAV files as mono float32 sample buffers
// and resamples them to the rates the models expect.
package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Clip is mono PCM audio with samples in [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ReadWAV decodes a PCM WAV file into a mono clip. Multi-channel input is
// downmixed by averaging interleaved frames.
func ReadWAV(path string) (Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return Clip{}, fmt.Errorf("%q is not a valid WAV file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("failed to decode wav file %q: %w", path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("wav file %q has no usable format", path)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 1 || bitDepth > 32 {
		return Clip{}, fmt.Errorf("wav file %q has unsupported bit depth %d", path, bitDepth)
	}
	scale := float32(int64(1) << (bitDepth - 1))

	channels := buf.Format.NumChannels
	if len(buf.Data)%channels != 0 {
		return Clip{}, fmt.Errorf("wav file %q has a partial final frame", path)
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := float32(0)
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float32(channels)
	}

	return Clip{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// WriteWAV writes the clip as a 16-bit mono PCM WAV file. Samples outside
// [-1, 1] are clamped.
func WriteWAV(path string, clip Clip) error {
	if clip.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", clip.SampleRate)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: clip.SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(clip.Samples)),
	}
	for i, sample := range clip.Samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		buf.Data[i] = int(sample * 32767)
	}

	encoder := wav.NewEncoder(file, clip.SampleRate, 16, 1, 1)
	if err := encoder.Write(buf); err != nil {
		_ = encoder.Close()
		_ = file.Close()
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	if err := encoder.Close(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close wav file: %w", err)
	}
	return nil
}

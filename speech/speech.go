// Package speech synthesizes text to audio with an offline VITS model via
// sherpa-onnx.
package speech

import (
	"fmt"
	"os"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/zachswift615/listen2/audio"
)

// Audio is synthesized speech.
type Audio struct {
	Samples    []float32
	SampleRate int
}

// Clip converts the synthesized audio for the audio package's WAV and
// resampling helpers.
func (a Audio) Clip() audio.Clip {
	return audio.Clip{Samples: a.Samples, SampleRate: a.SampleRate}
}

// Engine synthesizes speech from text. Implementations are safe for
// concurrent use.
type Engine interface {
	// Generate synthesizes text with the given speaker and speed. Speed 1.0
	// is the model's natural pace.
	Generate(text string, speakerID int, speed float32) (Audio, error)

	// SampleRate returns the engine's output sample rate.
	SampleRate() int

	// Close releases the native synthesizer. Idempotent.
	Close() error
}

// Config locates the VITS voice model.
type Config struct {
	// ModelPath is the VITS onnx model file.
	ModelPath string

	// TokensPath is the model's tokens.txt.
	TokensPath string

	// LexiconPath is an optional lexicon file for models that need one.
	LexiconPath string

	// DataDir is an optional espeak-ng data directory for models that use
	// phoneme input.
	DataDir string

	// NumThreads is the synthesis thread count. Zero uses one thread.
	NumThreads int

	// Provider selects the execution provider: "cpu" (default) or "coreml".
	Provider string
}

// Validate checks the configuration before any native resources are touched;
// the native layer aborts the process on bad paths rather than returning
// errors.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ModelPath) == "" {
		return fmt.Errorf("tts model path cannot be empty")
	}
	if err := checkFile(c.ModelPath, "tts model"); err != nil {
		return err
	}
	if strings.TrimSpace(c.TokensPath) == "" {
		return fmt.Errorf("tts tokens path cannot be empty")
	}
	if err := checkFile(c.TokensPath, "tts tokens"); err != nil {
		return err
	}
	if c.LexiconPath != "" {
		if err := checkFile(c.LexiconPath, "tts lexicon"); err != nil {
			return err
		}
	}
	if c.DataDir != "" {
		info, err := os.Stat(c.DataDir)
		if err != nil {
			return fmt.Errorf("tts data dir is not readable: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("tts data dir is not a directory: %q", c.DataDir)
		}
	}
	if c.NumThreads < 0 {
		return fmt.Errorf("tts thread count cannot be negative: %d", c.NumThreads)
	}
	switch c.Provider {
	case "", "cpu", "coreml":
	default:
		return fmt.Errorf("unsupported tts provider %q", c.Provider)
	}
	return nil
}

func checkFile(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s file is not readable: %w", what, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s path is a directory: %q", what, path)
	}
	return nil
}

type sherpaEngine struct {
	mu     sync.Mutex
	tts    *sherpa.OfflineTts
	rate   int
	closed bool
}

// NewEngine creates a sherpa-onnx backed engine from a validated config.
func NewEngine(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	threads := cfg.NumThreads
	if threads == 0 {
		threads = 1
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "cpu"
	}

	ttsConfig := sherpa.OfflineTtsConfig{
		Model: sherpa.OfflineTtsModelConfig{
			Vits: sherpa.OfflineTtsVitsModelConfig{
				Model:       cfg.ModelPath,
				Tokens:      cfg.TokensPath,
				Lexicon:     cfg.LexiconPath,
				DataDir:     cfg.DataDir,
				NoiseScale:  0.667,
				NoiseScaleW: 0.8,
				LengthScale: 1.0,
			},
			NumThreads: threads,
			Provider:   provider,
		},
	}

	tts := sherpa.NewOfflineTts(&ttsConfig)
	if tts == nil {
		return nil, fmt.Errorf("failed to create tts engine for model %q", cfg.ModelPath)
	}

	return &sherpaEngine{tts: tts, rate: tts.SampleRate()}, nil
}

func (e *sherpaEngine) Generate(text string, speakerID int, speed float32) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, fmt.Errorf("tts text cannot be empty")
	}
	if speakerID < 0 {
		return Audio{}, fmt.Errorf("speaker id cannot be negative: %d", speakerID)
	}
	if speed <= 0 {
		return Audio{}, fmt.Errorf("speed must be positive, got %g", speed)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Audio{}, fmt.Errorf("tts engine is closed")
	}

	generated := e.tts.Generate(text, speakerID, speed)
	if generated == nil || len(generated.Samples) == 0 {
		return Audio{}, fmt.Errorf("tts produced no audio for text %q", truncateForError(text))
	}

	return Audio{
		Samples:    generated.Samples,
		SampleRate: generated.SampleRate,
	}, nil
}

func (e *sherpaEngine) SampleRate() int {
	return e.rate
}

func (e *sherpaEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	sherpa.DeleteOfflineTts(e.tts)
	e.tts = nil
	return nil
}

func truncateForError(text string) string {
	const max = 60
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

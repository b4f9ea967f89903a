// Package config loads the application configuration from YAML with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Alignment AlignmentConfig `yaml:"alignment"`
	TTS       TTSConfig       `yaml:"tts"`
}

// RuntimeConfig controls how the ONNX Runtime shared library is located.
type RuntimeConfig struct {
	LibraryPath     string `yaml:"library_path"`
	CacheDir        string `yaml:"cache_dir"`
	DisableDownload bool   `yaml:"disable_download"`
}

type AlignmentConfig struct {
	ModelPath      string `yaml:"model_path"`
	LabelsPath     string `yaml:"labels_path"`
	NumThreads     int    `yaml:"num_threads"`
	UseAccelerator bool   `yaml:"use_accelerator"`
}

type TTSConfig struct {
	ModelPath   string  `yaml:"model_path"`
	TokensPath  string  `yaml:"tokens_path"`
	LexiconPath string  `yaml:"lexicon_path"`
	DataDir     string  `yaml:"data_dir"`
	NumThreads  int     `yaml:"num_threads"`
	Provider    string  `yaml:"provider"`
	SpeakerID   int     `yaml:"speaker_id"`
	Speed       float64 `yaml:"speed"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Alignment: AlignmentConfig{
			ModelPath:  "./models/mms_fa.onnx",
			LabelsPath: "./models/mms_fa_labels.txt",
			NumThreads: 1,
		},
		TTS: TTSConfig{
			NumThreads: 1,
			Provider:   "cpu",
			Speed:      1.0,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.LogLevel, "LISTEN2_LOG_LEVEL")
	overrideString(&cfg.Runtime.LibraryPath, "LISTEN2_RUNTIME_LIBRARY_PATH")
	overrideString(&cfg.Runtime.CacheDir, "LISTEN2_RUNTIME_CACHE_DIR")
	overrideBool(&cfg.Runtime.DisableDownload, "LISTEN2_RUNTIME_DISABLE_DOWNLOAD")
	overrideString(&cfg.Alignment.ModelPath, "LISTEN2_ALIGNMENT_MODEL_PATH")
	overrideString(&cfg.Alignment.LabelsPath, "LISTEN2_ALIGNMENT_LABELS_PATH")
	overrideInt(&cfg.Alignment.NumThreads, "LISTEN2_ALIGNMENT_NUM_THREADS")
	overrideBool(&cfg.Alignment.UseAccelerator, "LISTEN2_ALIGNMENT_USE_ACCELERATOR")
	overrideString(&cfg.TTS.ModelPath, "LISTEN2_TTS_MODEL_PATH")
	overrideString(&cfg.TTS.TokensPath, "LISTEN2_TTS_TOKENS_PATH")
	overrideString(&cfg.TTS.LexiconPath, "LISTEN2_TTS_LEXICON_PATH")
	overrideString(&cfg.TTS.DataDir, "LISTEN2_TTS_DATA_DIR")
	overrideInt(&cfg.TTS.NumThreads, "LISTEN2_TTS_NUM_THREADS")
	overrideString(&cfg.TTS.Provider, "LISTEN2_TTS_PROVIDER")
	overrideInt(&cfg.TTS.SpeakerID, "LISTEN2_TTS_SPEAKER_ID")
	overrideFloat(&cfg.TTS.Speed, "LISTEN2_TTS_SPEED")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("log_level must be one of debug|info|warn|error")
	}
	if cfg.Alignment.ModelPath == "" {
		return errors.New("alignment.model_path must not be empty")
	}
	if cfg.Alignment.LabelsPath == "" {
		return errors.New("alignment.labels_path must not be empty")
	}
	if cfg.Alignment.NumThreads < 0 {
		return errors.New("alignment.num_threads must be >= 0")
	}
	if cfg.TTS.NumThreads < 0 {
		return errors.New("tts.num_threads must be >= 0")
	}
	switch cfg.TTS.Provider {
	case "", "cpu", "coreml":
	default:
		return errors.New("tts.provider must be one of cpu|coreml")
	}
	if cfg.TTS.SpeakerID < 0 {
		return errors.New("tts.speaker_id must be >= 0")
	}
	if cfg.TTS.Speed <= 0 {
		return errors.New("tts.speed must be positive")
	}
	return nil
}

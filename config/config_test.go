package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Alignment.ModelPath != "./models/mms_fa.onnx" {
		t.Fatalf("expected default model path, got %q", cfg.Alignment.ModelPath)
	}
	if cfg.TTS.Speed != 1.0 {
		t.Fatalf("expected default speed 1.0, got %v", cfg.TTS.Speed)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
log_level: debug
runtime:
  library_path: /opt/onnxruntime/libonnxruntime.dylib
alignment:
  model_path: /models/fa.onnx
  labels_path: /models/labels.txt
  num_threads: 4
  use_accelerator: true
tts:
  model_path: /models/vits.onnx
  tokens_path: /models/tokens.txt
  speed: 1.25
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.Runtime.LibraryPath != "/opt/onnxruntime/libonnxruntime.dylib" {
		t.Fatalf("expected library path override, got %q", cfg.Runtime.LibraryPath)
	}
	if cfg.Alignment.NumThreads != 4 || !cfg.Alignment.UseAccelerator {
		t.Fatalf("expected alignment overrides, got %+v", cfg.Alignment)
	}
	if cfg.TTS.Speed != 1.25 {
		t.Fatalf("expected speed 1.25, got %v", cfg.TTS.Speed)
	}
	if cfg.TTS.Provider != "cpu" {
		t.Fatalf("expected provider default preserved, got %q", cfg.TTS.Provider)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN2_LOG_LEVEL", "warn")
	t.Setenv("LISTEN2_ALIGNMENT_MODEL_PATH", "/override/fa.onnx")
	t.Setenv("LISTEN2_ALIGNMENT_NUM_THREADS", "8")
	t.Setenv("LISTEN2_ALIGNMENT_USE_ACCELERATOR", "true")
	t.Setenv("LISTEN2_TTS_SPEAKER_ID", "3")
	t.Setenv("LISTEN2_TTS_SPEED", "0.9")
	t.Setenv("LISTEN2_RUNTIME_DISABLE_DOWNLOAD", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log level override, got %q", cfg.LogLevel)
	}
	if cfg.Alignment.ModelPath != "/override/fa.onnx" {
		t.Fatalf("expected model path override, got %q", cfg.Alignment.ModelPath)
	}
	if cfg.Alignment.NumThreads != 8 {
		t.Fatalf("expected thread override, got %d", cfg.Alignment.NumThreads)
	}
	if !cfg.Alignment.UseAccelerator {
		t.Fatal("expected accelerator override true")
	}
	if cfg.TTS.SpeakerID != 3 {
		t.Fatalf("expected speaker override, got %d", cfg.TTS.SpeakerID)
	}
	if cfg.TTS.Speed != 0.9 {
		t.Fatalf("expected speed override, got %v", cfg.TTS.Speed)
	}
	if !cfg.Runtime.DisableDownload {
		t.Fatal("expected download disable override")
	}
}

func TestEnvOverrideIgnoresMalformed(t *testing.T) {
	t.Setenv("LISTEN2_ALIGNMENT_NUM_THREADS", "many")
	t.Setenv("LISTEN2_TTS_SPEED", "fast")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Alignment.NumThreads != 1 {
		t.Fatalf("expected default threads, got %d", cfg.Alignment.NumThreads)
	}
	if cfg.TTS.Speed != 1.0 {
		t.Fatalf("expected default speed, got %v", cfg.TTS.Speed)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"empty model path", func(c *Config) { c.Alignment.ModelPath = "" }},
		{"empty labels path", func(c *Config) { c.Alignment.LabelsPath = "" }},
		{"negative threads", func(c *Config) { c.Alignment.NumThreads = -1 }},
		{"bad provider", func(c *Config) { c.TTS.Provider = "cuda" }},
		{"negative speaker", func(c *Config) { c.TTS.SpeakerID = -1 }},
		{"zero speed", func(c *Config) { c.TTS.Speed = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

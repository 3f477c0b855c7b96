package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Synthesis.Speed != 1.0 {
		t.Errorf("Speed = %v, want 1.0", cfg.Synthesis.Speed)
	}
	if cfg.Synthesis.NoiseScale != 0.3 || cfg.Synthesis.NoiseScaleW != 0.6 {
		t.Errorf("noise scales = (%v, %v), want (0.3, 0.6)", cfg.Synthesis.NoiseScale, cfg.Synthesis.NoiseScaleW)
	}
	if cfg.Synthesis.SDPRatio != 0.2 {
		t.Errorf("SDPRatio = %v, want 0.2", cfg.Synthesis.SDPRatio)
	}
	if cfg.Synthesis.SampleRate != 24000 || cfg.Synthesis.BitDepth != 16 {
		t.Errorf("output format = (%d Hz, %d bit), want (24000, 16)", cfg.Synthesis.SampleRate, cfg.Synthesis.BitDepth)
	}
	if cfg.Synthesis.Language != "zh" {
		t.Errorf("Language = %q, want zh", cfg.Synthesis.Language)
	}
	if !cfg.Synthesis.Enhance {
		t.Error("Enhance disabled by default")
	}
	if cfg.Server.ListenAddr != ":8080" || cfg.Server.Workers != 1 {
		t.Errorf("server = (%q, %d workers)", cfg.Server.ListenAddr, cfg.Server.Workers)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestPathsResolution(t *testing.T) {
	p := PathsConfig{ModelDir: "models"}

	if got := p.Manifest(); got != filepath.Join("models", "manifest.json") {
		t.Errorf("Manifest = %q", got)
	}
	if got := p.Lexicon(); got != filepath.Join("models", "lexicon.txt") {
		t.Errorf("Lexicon = %q", got)
	}
	if got := p.Tokens(); got != filepath.Join("models", "tokens.txt") {
		t.Errorf("Tokens = %q", got)
	}
	if got := p.Speakers(); got != filepath.Join("models", "speakers.bin") {
		t.Errorf("Speakers = %q", got)
	}
	if got := p.Remap(); got != "" {
		t.Errorf("Remap = %q, want empty for built-in table", got)
	}

	p.ManifestPath = "/explicit/manifest.json"
	p.RemapPath = "/explicit/remap.txt"
	if got := p.Manifest(); got != "/explicit/manifest.json" {
		t.Errorf("explicit Manifest = %q", got)
	}
	if got := p.Remap(); got != "/explicit/remap.txt" {
		t.Errorf("explicit Remap = %q", got)
	}
}

func TestSanitize(t *testing.T) {
	log := slog.Default()

	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(*testing.T, Config)
	}{
		{
			name:   "non-positive speed resets",
			mutate: func(c *Config) { c.Synthesis.Speed = -2 },
			check: func(t *testing.T, c Config) {
				if c.Synthesis.Speed != 1.0 {
					t.Errorf("Speed = %v, want 1.0", c.Synthesis.Speed)
				}
			},
		},
		{
			name:   "negative speaker resets",
			mutate: func(c *Config) { c.Synthesis.SpeakerID = -1 },
			check: func(t *testing.T, c Config) {
				if c.Synthesis.SpeakerID != 0 {
					t.Errorf("SpeakerID = %d, want 0", c.Synthesis.SpeakerID)
				}
			},
		},
		{
			name:   "out-of-range noise scale resets",
			mutate: func(c *Config) { c.Synthesis.NoiseScale = 1.5 },
			check: func(t *testing.T, c Config) {
				if c.Synthesis.NoiseScale != 0.3 {
					t.Errorf("NoiseScale = %v, want 0.3", c.Synthesis.NoiseScale)
				}
			},
		},
		{
			name:   "out-of-range duration noise resets",
			mutate: func(c *Config) { c.Synthesis.NoiseScaleW = -0.1 },
			check: func(t *testing.T, c Config) {
				if c.Synthesis.NoiseScaleW != 0.6 {
					t.Errorf("NoiseScaleW = %v, want 0.6", c.Synthesis.NoiseScaleW)
				}
			},
		},
		{
			name:   "non-positive sample rate resets",
			mutate: func(c *Config) { c.Synthesis.SampleRate = 0 },
			check: func(t *testing.T, c Config) {
				if c.Synthesis.SampleRate != 24000 {
					t.Errorf("SampleRate = %d, want 24000", c.Synthesis.SampleRate)
				}
			},
		},
		{
			name:   "valid config unchanged",
			mutate: func(c *Config) { c.Synthesis.Speed = 1.3 },
			check: func(t *testing.T, c Config) {
				if c.Synthesis.Speed != 1.3 {
					t.Errorf("Speed = %v, want 1.3", c.Synthesis.Speed)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			tt.check(t, cfg.Sanitize(log))
		})
	}
}

// fakeCmd satisfies the flag binder without pulling cobra into this test.
type fakeCmd struct {
	fs *pflag.FlagSet
}

func (f *fakeCmd) Flags() *pflag.FlagSet { return f.fs }

func newFakeCmd() *fakeCmd {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())
	return &fakeCmd{fs: fs}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Cmd: newFakeCmd(), Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Synthesis.Speed != 1.0 || cfg.Paths.ModelDir != "models" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFlagOverride(t *testing.T) {
	cmd := newFakeCmd()
	if err := cmd.fs.Parse([]string{"--synthesis-speed=1.5", "--paths-model-dir=/opt/models"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(LoadOptions{Cmd: cmd, Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Synthesis.Speed != 1.5 {
		t.Errorf("Speed = %v, want flag value 1.5", cfg.Synthesis.Speed)
	}
	if cfg.Paths.ModelDir != "/opt/models" {
		t.Errorf("ModelDir = %q, want /opt/models", cfg.Paths.ModelDir)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "melotts.yaml")
	content := "synthesis:\n  speed: 0.8\n  language: en\nserver:\n  listen_addr: \":9090\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{Cmd: newFakeCmd(), ConfigFile: path, Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Synthesis.Speed != 0.8 || cfg.Synthesis.Language != "en" {
		t.Errorf("synthesis from file = (%v, %q)", cfg.Synthesis.Speed, cfg.Synthesis.Language)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	// Untouched keys keep their defaults.
	if cfg.Synthesis.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want default 24000", cfg.Synthesis.SampleRate)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(LoadOptions{
		Cmd:        newFakeCmd(),
		ConfigFile: filepath.Join(t.TempDir(), "absent.yaml"),
		Defaults:   DefaultConfig(),
	}); err == nil {
		t.Error("explicit missing config file accepted")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MELOTTS_SYNTHESIS_SPEED", "1.7")
	t.Setenv("MELOTTS_ORT_LIB", "/usr/lib/libonnxruntime.so")

	cfg, err := Load(LoadOptions{Cmd: newFakeCmd(), Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Synthesis.Speed != 1.7 {
		t.Errorf("Speed = %v, want env value 1.7", cfg.Synthesis.Speed)
	}
	if cfg.Runtime.ORTLibraryPath != "/usr/lib/libonnxruntime.so" {
		t.Errorf("ORTLibraryPath = %q, want env value", cfg.Runtime.ORTLibraryPath)
	}
}

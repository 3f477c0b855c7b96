// Package config loads layered configuration for the melotts CLI:
// defaults < config file < environment < flags.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Server    ServerConfig    `mapstructure:"server"`
	LogLevel  string          `mapstructure:"log_level"`
}

// PathsConfig locates the model assets. Individual paths default to
// conventional filenames inside ModelDir when left empty.
type PathsConfig struct {
	ModelDir     string `mapstructure:"model_dir"`
	ManifestPath string `mapstructure:"manifest_path"`
	LexiconPath  string `mapstructure:"lexicon_path"`
	TokensPath   string `mapstructure:"tokens_path"`
	SpeakerPath  string `mapstructure:"speaker_path"`
	RemapPath    string `mapstructure:"remap_path"`
}

// Manifest returns the resolved model manifest path.
func (p PathsConfig) Manifest() string { return p.resolve(p.ManifestPath, "manifest.json") }

// Lexicon returns the resolved dictionary path.
func (p PathsConfig) Lexicon() string { return p.resolve(p.LexiconPath, "lexicon.txt") }

// Tokens returns the resolved phoneme table path.
func (p PathsConfig) Tokens() string { return p.resolve(p.TokensPath, "tokens.txt") }

// Speakers returns the resolved speaker-embedding blob path.
func (p PathsConfig) Speakers() string { return p.resolve(p.SpeakerPath, "speakers.bin") }

// Remap returns the phoneme remap table path, or "" for the built-in table.
func (p PathsConfig) Remap() string {
	if p.RemapPath == "" {
		return ""
	}
	return p.RemapPath
}

func (p PathsConfig) resolve(explicit, name string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(p.ModelDir, name)
}

type RuntimeConfig struct {
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTAPIVersion  uint32 `mapstructure:"ort_api_version"`
}

// SynthesisConfig carries the per-engine synthesis controls.
type SynthesisConfig struct {
	Speed          float64 `mapstructure:"speed"`
	SpeakerID      int     `mapstructure:"speaker_id"`
	NoiseScale     float64 `mapstructure:"noise_scale"`
	NoiseScaleW    float64 `mapstructure:"noise_scale_w"`
	SDPRatio       float64 `mapstructure:"sdp_ratio"`
	SampleRate     int     `mapstructure:"sample_rate"`
	BitDepth       int     `mapstructure:"bit_depth"`
	Language       string  `mapstructure:"language"`
	Enhance        bool    `mapstructure:"enhance"`
	MinSentenceLen int     `mapstructure:"min_sentence_len"`
}

type ServerConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	MaxTextBytes   int    `mapstructure:"max_text_bytes"`
	RequestTimeout int    `mapstructure:"request_timeout"` // seconds
	Workers        int    `mapstructure:"workers"`
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelDir: "models",
		},
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ORTAPIVersion:  0,
		},
		Synthesis: SynthesisConfig{
			Speed:          1.0,
			SpeakerID:      0,
			NoiseScale:     0.3,
			NoiseScaleW:    0.6,
			SDPRatio:       0.2,
			SampleRate:     24000,
			BitDepth:       16,
			Language:       "zh",
			Enhance:        true,
			MinSentenceLen: 10,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			MaxTextBytes:   4096,
			RequestTimeout: 60,
			Workers:        1,
		},
		LogLevel: "info",
	}
}

// Sanitize clamps invalid synthesis values back to their defaults with a
// logged warning instead of failing, mirroring the reference setters.
func (c Config) Sanitize(log *slog.Logger) Config {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultConfig().Synthesis
	s := &c.Synthesis

	if s.Speed <= 0 {
		log.Warn("invalid speed, using default", "speed", s.Speed, "default", def.Speed)
		s.Speed = def.Speed
	}
	if s.SpeakerID < 0 {
		log.Warn("invalid speaker ID, using default", "speaker", s.SpeakerID, "default", def.SpeakerID)
		s.SpeakerID = def.SpeakerID
	}
	if s.NoiseScale < 0 || s.NoiseScale > 1 {
		log.Warn("invalid noise scale, using default", "noise_scale", s.NoiseScale, "default", def.NoiseScale)
		s.NoiseScale = def.NoiseScale
	}
	if s.NoiseScaleW < 0 || s.NoiseScaleW > 1 {
		log.Warn("invalid duration noise scale, using default", "noise_scale_w", s.NoiseScaleW, "default", def.NoiseScaleW)
		s.NoiseScaleW = def.NoiseScaleW
	}
	if s.SampleRate <= 0 {
		log.Warn("invalid sample rate, using default", "sample_rate", s.SampleRate, "default", def.SampleRate)
		s.SampleRate = def.SampleRate
	}

	return c
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-dir", defaults.Paths.ModelDir, "Model asset directory")
	fs.String("paths-manifest-path", defaults.Paths.ManifestPath, "Model manifest path (default: <model-dir>/manifest.json)")
	fs.String("paths-lexicon-path", defaults.Paths.LexiconPath, "Dictionary path (default: <model-dir>/lexicon.txt)")
	fs.String("paths-tokens-path", defaults.Paths.TokensPath, "Phoneme table path (default: <model-dir>/tokens.txt)")
	fs.String("paths-speaker-path", defaults.Paths.SpeakerPath, "Speaker embedding blob path (default: <model-dir>/speakers.bin)")
	fs.String("paths-remap-path", defaults.Paths.RemapPath, "Phoneme remap table path (default: built-in table)")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.Uint32("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime API version (0 = binding default)")
	fs.Float64("synthesis-speed", defaults.Synthesis.Speed, "Speech speed (1.0 = normal)")
	fs.Int("synthesis-speaker-id", defaults.Synthesis.SpeakerID, "Speaker ID")
	fs.Float64("synthesis-noise-scale", defaults.Synthesis.NoiseScale, "Voice variation noise scale [0,1]")
	fs.Float64("synthesis-noise-scale-w", defaults.Synthesis.NoiseScaleW, "Duration variation noise scale [0,1]")
	fs.Float64("synthesis-sdp-ratio", defaults.Synthesis.SDPRatio, "Stochastic duration predictor ratio")
	fs.Int("synthesis-sample-rate", defaults.Synthesis.SampleRate, "Output sample rate in Hz")
	fs.Int("synthesis-bit-depth", defaults.Synthesis.BitDepth, "Output WAV bit depth (16|24|32)")
	fs.String("synthesis-language", defaults.Synthesis.Language, "Language tag (zh|en)")
	fs.Bool("synthesis-enhance", defaults.Synthesis.Enhance, "Apply audio enhancement")
	fs.Int("synthesis-min-sentence-len", defaults.Synthesis.MinSentenceLen, "Minimum merged-sentence length in characters")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request synthesis timeout in seconds")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent synthesis requests")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("MELOTTS")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "MELOTTS_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("melotts")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_dir", c.Paths.ModelDir)
	v.SetDefault("paths.manifest_path", c.Paths.ManifestPath)
	v.SetDefault("paths.lexicon_path", c.Paths.LexiconPath)
	v.SetDefault("paths.tokens_path", c.Paths.TokensPath)
	v.SetDefault("paths.speaker_path", c.Paths.SpeakerPath)
	v.SetDefault("paths.remap_path", c.Paths.RemapPath)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("synthesis.speed", c.Synthesis.Speed)
	v.SetDefault("synthesis.speaker_id", c.Synthesis.SpeakerID)
	v.SetDefault("synthesis.noise_scale", c.Synthesis.NoiseScale)
	v.SetDefault("synthesis.noise_scale_w", c.Synthesis.NoiseScaleW)
	v.SetDefault("synthesis.sdp_ratio", c.Synthesis.SDPRatio)
	v.SetDefault("synthesis.sample_rate", c.Synthesis.SampleRate)
	v.SetDefault("synthesis.bit_depth", c.Synthesis.BitDepth)
	v.SetDefault("synthesis.language", c.Synthesis.Language)
	v.SetDefault("synthesis.enhance", c.Synthesis.Enhance)
	v.SetDefault("synthesis.min_sentence_len", c.Synthesis.MinSentenceLen)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.model_dir", "paths-model-dir")
	v.RegisterAlias("paths.manifest_path", "paths-manifest-path")
	v.RegisterAlias("paths.lexicon_path", "paths-lexicon-path")
	v.RegisterAlias("paths.tokens_path", "paths-tokens-path")
	v.RegisterAlias("paths.speaker_path", "paths-speaker-path")
	v.RegisterAlias("paths.remap_path", "paths-remap-path")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("runtime.ort_api_version", "runtime-ort-api-version")
	v.RegisterAlias("synthesis.speed", "synthesis-speed")
	v.RegisterAlias("synthesis.speaker_id", "synthesis-speaker-id")
	v.RegisterAlias("synthesis.noise_scale", "synthesis-noise-scale")
	v.RegisterAlias("synthesis.noise_scale_w", "synthesis-noise-scale-w")
	v.RegisterAlias("synthesis.sdp_ratio", "synthesis-sdp-ratio")
	v.RegisterAlias("synthesis.sample_rate", "synthesis-sample-rate")
	v.RegisterAlias("synthesis.bit_depth", "synthesis-bit-depth")
	v.RegisterAlias("synthesis.language", "synthesis-language")
	v.RegisterAlias("synthesis.enhance", "synthesis-enhance")
	v.RegisterAlias("synthesis.min_sentence_len", "synthesis-min-sentence-len")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.max_text_bytes", "server-max-text-bytes")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("log_level", "log-level")
}

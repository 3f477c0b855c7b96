// Package tts assembles the synthesis pipeline: text → phonemes → acoustic
// inference → chunked vocoder decoding → waveform cleanup.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/example/go-melotts/internal/audio"
	"github.com/example/go-melotts/internal/config"
	"github.com/example/go-melotts/internal/lexicon"
	"github.com/example/go-melotts/internal/onnx"
)

// ErrEmptyText is returned when a synthesis request carries no text.
var ErrEmptyText = errors.New("input text is empty")

// ErrUnsupportedLanguage is returned for language tags outside zh/en.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Manifest graph names.
const (
	acousticGraph = "acoustic"
	vocoderGraph  = "vocoder"
)

// Synthesizer is the engine surface: synthesis, WAV persistence, and the
// runtime-adjustable controls.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) ([]float32, error)
	Save(path string, samples []float32) error
	SetSpeed(speed float64)
	SetSpeakerID(id int)
	SetNoiseScale(scale float64)
	Close()
}

// Service is the concrete pipeline implementation. The lexicon, speaker
// bank and graph runners are built once at construction and read-only
// afterwards; per-request buffers are not shared, so concurrent calls
// require separate Service instances.
type Service struct {
	log *slog.Logger
	cfg config.SynthesisConfig

	lex       *lexicon.Lexicon
	bank      *SpeakerBank
	acoustic  *AcousticBridge
	assembler *ChunkAssembler

	runners []onnx.GraphRunner
}

var _ Synthesizer = (*Service)(nil)

// NewService loads all model assets and creates the ORT sessions declared
// by the model manifest. Missing or malformed assets are fatal.
func NewService(cfg config.Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.Sanitize(log)

	lex, err := lexicon.New(lexicon.Config{
		LexiconPath:    cfg.Paths.Lexicon(),
		TokensPath:     cfg.Paths.Tokens(),
		RemapPath:      cfg.Paths.Remap(),
		MinSentenceLen: cfg.Synthesis.MinSentenceLen,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	bank, err := LoadSpeakerBank(cfg.Paths.Speakers(), log)
	if err != nil {
		return nil, err
	}

	sm, err := onnx.NewSessionManager(cfg.Paths.Manifest())
	if err != nil {
		return nil, err
	}

	runnerCfg := onnx.RunnerConfig{
		LibraryPath: cfg.Runtime.ORTLibraryPath,
		APIVersion:  cfg.Runtime.ORTAPIVersion,
	}

	acousticMeta, ok := sm.Session(acousticGraph)
	if !ok {
		return nil, fmt.Errorf("model manifest declares no %q graph", acousticGraph)
	}
	acousticRunner, err := onnx.NewRunner(acousticMeta, runnerCfg)
	if err != nil {
		return nil, err
	}

	vocoderMeta, ok := sm.Session(vocoderGraph)
	if !ok {
		acousticRunner.Close()
		return nil, fmt.Errorf("model manifest declares no %q graph", vocoderGraph)
	}
	vocoderRunner, err := onnx.NewRunner(vocoderMeta, runnerCfg)
	if err != nil {
		acousticRunner.Close()
		return nil, err
	}

	svc, err := newService(cfg, log, lex, bank, acousticRunner, vocoderMeta, vocoderRunner)
	if err != nil {
		acousticRunner.Close()
		vocoderRunner.Close()
		return nil, err
	}
	return svc, nil
}

// newService wires a Service from already-built collaborators. Tests use it
// with fake runners.
func newService(
	cfg config.Config,
	log *slog.Logger,
	lex *lexicon.Lexicon,
	bank *SpeakerBank,
	acousticRunner onnx.GraphRunner,
	vocoderMeta onnx.Session,
	vocoderRunner onnx.GraphRunner,
) (*Service, error) {
	assembler, err := NewChunkAssembler(vocoderMeta, vocoderRunner, log)
	if err != nil {
		return nil, err
	}

	return &Service{
		log:       log,
		cfg:       cfg.Synthesis,
		lex:       lex,
		bank:      bank,
		acoustic:  NewAcousticBridge(acousticRunner, log),
		assembler: assembler,
		runners:   []onnx.GraphRunner{acousticRunner, vocoderRunner},
	}, nil
}

// languageID maps a language tag onto the fixed language-ID constant baked
// into the model export.
func languageID(language string) (int64, error) {
	switch strings.ToLower(language) {
	case "zh", "zh-cn":
		return 0, nil
	case "en", "en-us":
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
}

// Synthesize runs the full pipeline and returns mono float32 samples of the
// model-predicted length. Empty text is rejected before any inference.
func (s *Service) Synthesize(ctx context.Context, text, language string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	langID, err := languageID(language)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	phones, tones := s.lex.Convert(text)

	blank := s.lex.BlankID()
	phones = lexicon.Intersperse(phones, blank)
	tones = lexicon.Intersperse(tones, 0)

	languages := make([]int64, len(phones))
	for i := range languages {
		languages[i] = langID
	}
	s.log.Debug("text resolved",
		"phonemes", len(phones),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	embedding := s.bank.Embedding(s.cfg.SpeakerID)

	start = time.Now()
	features, predictedLen, err := s.acoustic.Run(ctx, phones, tones, languages, embedding, AcousticParams{
		NoiseScale:  float32(s.cfg.NoiseScale),
		NoiseScaleW: float32(s.cfg.NoiseScaleW),
		LengthScale: float32(1.0 / s.cfg.Speed),
		SDPRatio:    float32(s.cfg.SDPRatio),
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	s.log.Debug("acoustic stage done", "duration_ms", time.Since(start).Milliseconds())

	start = time.Now()
	samples, err := s.assembler.Assemble(ctx, features, embedding, predictedLen)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	s.log.Debug("vocoder stage done", "duration_ms", time.Since(start).Milliseconds())

	stats := audio.Analyze(samples)
	if s.cfg.Enhance || stats.NeedsEnhancement() {
		if !s.cfg.Enhance {
			s.log.Warn("enhancement forced on near-silent output",
				"power_db", stats.PowerDB,
				"near_zero_frac", stats.NearZeroFrac,
				"peak", stats.Peak,
			)
		}
		samples = audio.Enhance(samples)
	}

	return samples, nil
}

// SynthesizeWAV synthesizes and serializes the result as a WAV byte slice.
func (s *Service) SynthesizeWAV(ctx context.Context, text, language string) ([]byte, error) {
	samples, err := s.Synthesize(ctx, text, language)
	if err != nil {
		return nil, err
	}
	return audio.EncodeWAV(samples, s.cfg.SampleRate, s.cfg.BitDepth)
}

// Save writes samples as a WAV file using the configured rate and depth.
func (s *Service) Save(path string, samples []float32) error {
	if len(samples) == 0 {
		return errors.New("no samples to save")
	}
	data, err := audio.EncodeWAV(samples, s.cfg.SampleRate, s.cfg.BitDepth)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.log.Info("WAV saved",
		"path", path,
		"samples", len(samples),
		"seconds", float64(len(samples))/float64(s.cfg.SampleRate),
	)
	return nil
}

// SetSpeed adjusts speech speed; non-positive values reset to 1.0.
func (s *Service) SetSpeed(speed float64) {
	if speed <= 0 {
		s.log.Warn("invalid speed, resetting", "speed", speed)
		speed = 1.0
	}
	s.cfg.Speed = speed
}

// SetSpeakerID selects a voice; negative values reset to speaker 0.
func (s *Service) SetSpeakerID(id int) {
	if id < 0 {
		s.log.Warn("invalid speaker ID, resetting", "speaker", id)
		id = 0
	}
	s.cfg.SpeakerID = id
}

// SetNoiseScale adjusts voice variation; values outside [0,1] reset to the
// default.
func (s *Service) SetNoiseScale(scale float64) {
	if scale < 0 || scale > 1 {
		s.log.Warn("invalid noise scale, resetting", "noise_scale", scale)
		scale = config.DefaultConfig().Synthesis.NoiseScale
	}
	s.cfg.NoiseScale = scale
}

// Speakers returns the number of voices in the embedding bank.
func (s *Service) Speakers() int { return s.bank.Count() }

// SampleRate returns the configured output sample rate.
func (s *Service) SampleRate() int { return s.cfg.SampleRate }

// Close releases the ORT sessions. Safe to call multiple times.
func (s *Service) Close() {
	for _, r := range s.runners {
		if r != nil {
			r.Close()
		}
	}
	s.runners = nil
}

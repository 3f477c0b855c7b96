package tts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/go-melotts/internal/onnx"
)

// Acoustic graph tensor names, fixed by the model export.
const (
	acousticFeaturesOutput  = "z_p"
	acousticPronounsOutput  = "pronoun_lens"
	acousticAudioLenOutput  = "audio_len"
	acousticExpectedOutputs = 3
)

// AcousticParams are the four scalar control inputs of the acoustic graph.
// LengthScale is the reciprocal of the requested speed.
type AcousticParams struct {
	NoiseScale  float32
	NoiseScaleW float32
	LengthScale float32
	SDPRatio    float32
}

// AcousticBridge formats the phoneme/tone/language/speaker tensors, invokes
// the acoustic graph and extracts the latent feature buffer plus the
// predicted total sample count. The graph itself is an opaque collaborator.
type AcousticBridge struct {
	runner onnx.GraphRunner
	log    *slog.Logger
}

// NewAcousticBridge wraps a runner for the acoustic graph.
func NewAcousticBridge(runner onnx.GraphRunner, log *slog.Logger) *AcousticBridge {
	if log == nil {
		log = slog.Default()
	}
	return &AcousticBridge{runner: runner, log: log}
}

// Run executes one acoustic inference. phones, tones and languageIDs must
// have equal length; embedding must be one speaker embedding. Any graph
// failure or malformed output is fatal for the request.
func (b *AcousticBridge) Run(
	ctx context.Context,
	phones, tones, languageIDs []int64,
	embedding []float32,
	p AcousticParams,
) (features []float32, predictedLen int, err error) {
	n := int64(len(phones))
	if n == 0 {
		return nil, 0, fmt.Errorf("acoustic: empty phoneme sequence")
	}
	if len(tones) != len(phones) || len(languageIDs) != len(phones) {
		return nil, 0, fmt.Errorf("acoustic: sequence length mismatch: phones=%d tones=%d languages=%d",
			len(phones), len(tones), len(languageIDs))
	}
	if len(embedding) != EmbeddingDim {
		return nil, 0, fmt.Errorf("acoustic: speaker embedding has %d elements, want %d",
			len(embedding), EmbeddingDim)
	}

	inputs := make(map[string]*onnx.Tensor, 8)
	build := func(name string, t *onnx.Tensor, buildErr error) {
		if err == nil && buildErr != nil {
			err = fmt.Errorf("acoustic input %q: %w", name, buildErr)
			return
		}
		inputs[name] = t
	}

	t, e := onnx.NewTensor(phones, []int64{n})
	build("phone", t, e)
	t, e = onnx.NewTensor(tones, []int64{n})
	build("tone", t, e)
	t, e = onnx.NewTensor(languageIDs, []int64{n})
	build("language", t, e)
	t, e = onnx.NewTensor(embedding, []int64{1, EmbeddingDim, 1})
	build("g", t, e)
	t, e = onnx.Scalar(p.NoiseScale)
	build("noise_scale", t, e)
	t, e = onnx.Scalar(p.NoiseScaleW)
	build("noise_scale_w", t, e)
	t, e = onnx.Scalar(p.LengthScale)
	build("length_scale", t, e)
	t, e = onnx.Scalar(p.SDPRatio)
	build("sdp_ratio", t, e)
	if err != nil {
		return nil, 0, err
	}

	outputs, err := b.runner.Run(ctx, inputs)
	if err != nil {
		return nil, 0, fmt.Errorf("acoustic inference: %w", err)
	}
	if len(outputs) < acousticExpectedOutputs {
		return nil, 0, fmt.Errorf("acoustic graph returned %d outputs, want at least %d",
			len(outputs), acousticExpectedOutputs)
	}

	featTensor, ok := outputs[acousticFeaturesOutput]
	if !ok {
		return nil, 0, fmt.Errorf("acoustic graph is missing output %q", acousticFeaturesOutput)
	}
	features, err = featTensor.Float32()
	if err != nil {
		return nil, 0, fmt.Errorf("acoustic output %q: %w", acousticFeaturesOutput, err)
	}

	lenTensor, ok := outputs[acousticAudioLenOutput]
	if !ok {
		return nil, 0, fmt.Errorf("acoustic graph is missing output %q", acousticAudioLenOutput)
	}
	lens, err := lenTensor.Int64()
	if err != nil {
		return nil, 0, fmt.Errorf("acoustic output %q: %w", acousticAudioLenOutput, err)
	}
	if len(lens) == 0 || lens[0] <= 0 {
		return nil, 0, fmt.Errorf("acoustic graph predicted invalid audio length %v", lens)
	}

	b.log.Debug("acoustic inference done",
		"phonemes", n,
		"feature_elems", len(features),
		"predicted_samples", lens[0],
	)

	return features, int(lens[0]), nil
}

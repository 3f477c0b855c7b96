package tts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/go-melotts/internal/onnx"
)

// Vocoder graph tensor names, fixed by the model export.
const (
	vocoderFeaturesInput  = "z_p"
	vocoderEmbeddingInput = "g"
	vocoderAudioOutput    = "audio"
)

// ChunkAssembler adapts the variable-length latent feature buffer to the
// vocoder graph's fixed input window. The window width W, channel count C
// and per-invocation sample count S are read from the graph's declared
// shapes, never hard-coded. Chunking is purely a tensor-size adaptation:
// any window failure aborts the whole request.
type ChunkAssembler struct {
	runner onnx.GraphRunner
	log    *slog.Logger

	channels   int // C
	window     int // W, frames per invocation
	outSamples int // S, samples produced per invocation
}

// NewChunkAssembler reads the vocoder geometry from the manifest entry. The
// features input must be declared [1, C, W]; S is the element count of the
// declared output.
func NewChunkAssembler(meta onnx.Session, runner onnx.GraphRunner, log *slog.Logger) (*ChunkAssembler, error) {
	if log == nil {
		log = slog.Default()
	}

	in, ok := meta.Input(vocoderFeaturesInput)
	if !ok {
		return nil, fmt.Errorf("vocoder graph %q declares no input %q", meta.Name, vocoderFeaturesInput)
	}
	inShape, err := onnx.ResolveShape(in.Shape)
	if err != nil {
		return nil, fmt.Errorf("vocoder input shape: %w", err)
	}
	if len(inShape) != 3 || inShape[0] != 1 {
		return nil, fmt.Errorf("vocoder input %q has shape %v, want [1, C, W]", vocoderFeaturesInput, inShape)
	}

	if len(meta.Outputs) == 0 {
		return nil, fmt.Errorf("vocoder graph %q declares no outputs", meta.Name)
	}
	outShape, err := onnx.ResolveShape(meta.Outputs[0].Shape)
	if err != nil {
		return nil, fmt.Errorf("vocoder output shape: %w", err)
	}
	outSamples := 1
	for _, d := range outShape {
		outSamples *= int(d)
	}
	if outSamples < 1 {
		return nil, fmt.Errorf("vocoder output shape %v yields no samples", outShape)
	}

	return &ChunkAssembler{
		runner:     runner,
		log:        log,
		channels:   int(inShape[1]),
		window:     int(inShape[2]),
		outSamples: outSamples,
	}, nil
}

// Window returns the fixed frame-window width W.
func (a *ChunkAssembler) Window() int { return a.window }

// Channels returns the fixed feature channel count C.
func (a *ChunkAssembler) Channels() int { return a.channels }

// Assemble tiles the channel-major feature buffer [C, F] into zero-padded
// [C, W] windows, runs the vocoder once per window with the speaker
// embedding, and stitches the decoded slices into a buffer of exactly
// predictedLen samples (trimmed on overshoot, zero-padded on undershoot).
func (a *ChunkAssembler) Assemble(
	ctx context.Context,
	features []float32,
	embedding []float32,
	predictedLen int,
) ([]float32, error) {
	if predictedLen <= 0 {
		return nil, fmt.Errorf("vocoder: invalid predicted length %d", predictedLen)
	}
	if len(features) == 0 || len(features)%a.channels != 0 {
		return nil, fmt.Errorf("vocoder: feature buffer of %d elements does not divide into %d channels",
			len(features), a.channels)
	}

	embTensor, err := onnx.NewTensor(embedding, []int64{1, EmbeddingDim, 1})
	if err != nil {
		return nil, fmt.Errorf("vocoder embedding tensor: %w", err)
	}

	frames := len(features) / a.channels // F
	numWindows := (frames + a.window - 1) / a.window
	audio := make([]float32, 0, predictedLen)

	for i := 0; i < numWindows && len(audio) < predictedLen; i++ {
		start := i * a.window
		copyFrames := min(a.window, frames-start)

		// Reindex from channel-major over the full length to channel-major
		// over the fixed window: src c*F+start+j → dst c*W+j.
		windowBuf := make([]float32, a.channels*a.window)
		for c := 0; c < a.channels; c++ {
			copy(windowBuf[c*a.window:c*a.window+copyFrames],
				features[c*frames+start:c*frames+start+copyFrames])
		}

		windowTensor, err := onnx.NewTensor(windowBuf, []int64{1, int64(a.channels), int64(a.window)})
		if err != nil {
			return nil, fmt.Errorf("vocoder window %d tensor: %w", i, err)
		}

		outputs, err := a.runner.Run(ctx, map[string]*onnx.Tensor{
			vocoderFeaturesInput:  windowTensor,
			vocoderEmbeddingInput: embTensor,
		})
		if err != nil {
			return nil, fmt.Errorf("vocoder window %d/%d: %w", i+1, numWindows, err)
		}

		out, ok := outputs[vocoderAudioOutput]
		if !ok {
			// Single-output graphs may use a different name; take the only one.
			if len(outputs) != 1 {
				return nil, fmt.Errorf("vocoder window %d returned %d outputs, none named %q",
					i, len(outputs), vocoderAudioOutput)
			}
			for _, t := range outputs {
				out = t
			}
		}
		samples, err := out.Float32()
		if err != nil {
			return nil, fmt.Errorf("vocoder window %d output: %w", i, err)
		}

		take := min(a.outSamples, len(samples))
		take = min(take, predictedLen-len(audio))
		audio = append(audio, samples[:take]...)
	}

	// Exact-length postcondition: trim overshoot, zero-pad undershoot.
	if len(audio) > predictedLen {
		audio = audio[:predictedLen]
	}
	for len(audio) < predictedLen {
		audio = append(audio, 0)
	}

	a.log.Debug("vocoder assembly done",
		"frames", frames,
		"windows", numWindows,
		"samples", len(audio),
	)

	return audio, nil
}

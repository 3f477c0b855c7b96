package tts

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/example/go-melotts/internal/onnx"
)

// seqRunner replays one canned response per call, recording inputs. The last
// response repeats if invoked more often than configured.
type seqRunner struct {
	responses []map[string]*onnx.Tensor
	err       error

	calls  int
	inputs []map[string]*onnx.Tensor
}

func (f *seqRunner) Run(_ context.Context, inputs map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
	f.calls++
	f.inputs = append(f.inputs, inputs)
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *seqRunner) Close() {}

// vocoderMeta declares a toy geometry: C=2 channels, W=4 frame window,
// S=8 samples per invocation.
func vocoderTestMeta() onnx.Session {
	return onnx.Session{
		Name: "vocoder",
		Inputs: []onnx.NodeInfo{
			{Name: "z_p", DType: "float32", Shape: []any{1, 2, 4}},
			{Name: "g", DType: "float32", Shape: []any{1, EmbeddingDim, 1}},
		},
		Outputs: []onnx.NodeInfo{
			{Name: "audio", DType: "float32", Shape: []any{1, 1, 8}},
		},
	}
}

// channelMajor builds a [C, F] feature buffer with features[c*F+f] = c*100+f,
// so window contents are recognizable in assertions.
func channelMajor(channels, frames int) []float32 {
	out := make([]float32, channels*frames)
	for c := 0; c < channels; c++ {
		for f := 0; f < frames; f++ {
			out[c*frames+f] = float32(c*100 + f)
		}
	}
	return out
}

func audioResponse(t *testing.T, samples []float32) map[string]*onnx.Tensor {
	t.Helper()
	return map[string]*onnx.Tensor{
		"audio": mustTensor(t, samples, []int64{int64(len(samples))}),
	}
}

func ramp(start float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestNewChunkAssembler(t *testing.T) {
	t.Run("reads geometry from declared shapes", func(t *testing.T) {
		a, err := NewChunkAssembler(vocoderTestMeta(), &seqRunner{}, nil)
		if err != nil {
			t.Fatalf("NewChunkAssembler: %v", err)
		}
		if a.Window() != 4 || a.Channels() != 2 {
			t.Errorf("geometry = (C=%d, W=%d), want (2, 4)", a.Channels(), a.Window())
		}
	})

	t.Run("missing features input", func(t *testing.T) {
		meta := vocoderTestMeta()
		meta.Inputs = meta.Inputs[1:]
		if _, err := NewChunkAssembler(meta, &seqRunner{}, nil); err == nil {
			t.Error("accepted graph without z_p input")
		}
	})

	t.Run("non-window input shape", func(t *testing.T) {
		meta := vocoderTestMeta()
		meta.Inputs[0].Shape = []any{2, 4}
		if _, err := NewChunkAssembler(meta, &seqRunner{}, nil); err == nil {
			t.Error("accepted non-[1,C,W] input shape")
		}
	})

	t.Run("no declared outputs", func(t *testing.T) {
		meta := vocoderTestMeta()
		meta.Outputs = nil
		if _, err := NewChunkAssembler(meta, &seqRunner{}, nil); err == nil {
			t.Error("accepted graph without outputs")
		}
	})
}

func TestAssembleExactMultiple(t *testing.T) {
	runner := &seqRunner{responses: []map[string]*onnx.Tensor{
		audioResponse(t, ramp(1, 8)),
		audioResponse(t, ramp(9, 8)),
	}}
	a, err := NewChunkAssembler(vocoderTestMeta(), runner, nil)
	if err != nil {
		t.Fatalf("NewChunkAssembler: %v", err)
	}

	got, err := a.Assemble(context.Background(), channelMajor(2, 8), testEmbedding(0.5), 16)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !reflect.DeepEqual(got, append(ramp(1, 8), ramp(9, 8)...)) {
		t.Errorf("stitched audio = %v", got)
	}
	if runner.calls != 2 {
		t.Errorf("runner called %d times, want 2", runner.calls)
	}

	// First window carries frames 0..3 of each channel reindexed to the
	// fixed window stride, second window frames 4..7.
	win1, err := runner.inputs[0]["z_p"].Float32()
	if err != nil {
		t.Fatalf("window 1 tensor: %v", err)
	}
	want1 := []float32{0, 1, 2, 3, 100, 101, 102, 103}
	if !reflect.DeepEqual(win1, want1) {
		t.Errorf("window 1 = %v, want %v", win1, want1)
	}
	win2, _ := runner.inputs[1]["z_p"].Float32()
	want2 := []float32{4, 5, 6, 7, 104, 105, 106, 107}
	if !reflect.DeepEqual(win2, want2) {
		t.Errorf("window 2 = %v, want %v", win2, want2)
	}

	if _, ok := runner.inputs[0]["g"]; !ok {
		t.Error("speaker embedding not passed to vocoder")
	}
}

func TestAssemblePartialWindowZeroPads(t *testing.T) {
	runner := &seqRunner{responses: []map[string]*onnx.Tensor{
		audioResponse(t, ramp(1, 8)),
	}}
	a, err := NewChunkAssembler(vocoderTestMeta(), runner, nil)
	if err != nil {
		t.Fatalf("NewChunkAssembler: %v", err)
	}

	got, err := a.Assemble(context.Background(), channelMajor(2, 5), testEmbedding(0.5), 10)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	if runner.calls != 2 {
		t.Errorf("runner called %d times, want 2", runner.calls)
	}

	// The trailing window holds one real frame per channel, rest zeros.
	win2, _ := runner.inputs[1]["z_p"].Float32()
	want := []float32{4, 0, 0, 0, 104, 0, 0, 0}
	if !reflect.DeepEqual(win2, want) {
		t.Errorf("trailing window = %v, want %v", win2, want)
	}
}

func TestAssembleShortFeatureBuffer(t *testing.T) {
	runner := &seqRunner{responses: []map[string]*onnx.Tensor{
		audioResponse(t, ramp(1, 8)),
	}}
	a, err := NewChunkAssembler(vocoderTestMeta(), runner, nil)
	if err != nil {
		t.Fatalf("NewChunkAssembler: %v", err)
	}

	got, err := a.Assemble(context.Background(), channelMajor(2, 2), testEmbedding(0.5), 3)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !reflect.DeepEqual(got, []float32{1, 2, 3}) {
		t.Errorf("audio = %v, want [1 2 3]", got)
	}
	if runner.calls != 1 {
		t.Errorf("runner called %d times, want 1", runner.calls)
	}
}

func TestAssembleStopsOncePredictedLengthReached(t *testing.T) {
	runner := &seqRunner{responses: []map[string]*onnx.Tensor{
		audioResponse(t, ramp(1, 8)),
	}}
	a, err := NewChunkAssembler(vocoderTestMeta(), runner, nil)
	if err != nil {
		t.Fatalf("NewChunkAssembler: %v", err)
	}

	got, err := a.Assemble(context.Background(), channelMajor(2, 8), testEmbedding(0.5), 5)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("len = %d, want 5", len(got))
	}
	if runner.calls != 1 {
		t.Errorf("runner called %d times, want 1 (early stop)", runner.calls)
	}
}

func TestAssembleZeroPadsUndershoot(t *testing.T) {
	// The graph yields fewer samples than its declared output size.
	runner := &seqRunner{responses: []map[string]*onnx.Tensor{
		audioResponse(t, ramp(1, 4)),
	}}
	a, err := NewChunkAssembler(vocoderTestMeta(), runner, nil)
	if err != nil {
		t.Fatalf("NewChunkAssembler: %v", err)
	}

	got, err := a.Assemble(context.Background(), channelMajor(2, 4), testEmbedding(0.5), 6)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !reflect.DeepEqual(got, []float32{1, 2, 3, 4, 0, 0}) {
		t.Errorf("audio = %v, want [1 2 3 4 0 0]", got)
	}
}

func TestAssembleSingleUnnamedOutputFallback(t *testing.T) {
	runner := &seqRunner{responses: []map[string]*onnx.Tensor{
		{"y": mustTensor(t, ramp(1, 8), []int64{8})},
	}}
	a, err := NewChunkAssembler(vocoderTestMeta(), runner, nil)
	if err != nil {
		t.Fatalf("NewChunkAssembler: %v", err)
	}

	got, err := a.Assemble(context.Background(), channelMajor(2, 4), testEmbedding(0.5), 8)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(got) != 8 {
		t.Errorf("len = %d, want 8", len(got))
	}
}

func TestAssembleErrors(t *testing.T) {
	meta := vocoderTestMeta()

	t.Run("non-positive predicted length", func(t *testing.T) {
		a, _ := NewChunkAssembler(meta, &seqRunner{}, nil)
		if _, err := a.Assemble(context.Background(), channelMajor(2, 4), testEmbedding(0.5), 0); err == nil {
			t.Error("accepted predicted length 0")
		}
	})

	t.Run("feature buffer not divisible by channels", func(t *testing.T) {
		a, _ := NewChunkAssembler(meta, &seqRunner{}, nil)
		if _, err := a.Assemble(context.Background(), make([]float32, 5), testEmbedding(0.5), 8); err == nil {
			t.Error("accepted indivisible feature buffer")
		}
	})

	t.Run("window failure aborts the request", func(t *testing.T) {
		a, _ := NewChunkAssembler(meta, &seqRunner{err: errors.New("boom")}, nil)
		if _, err := a.Assemble(context.Background(), channelMajor(2, 4), testEmbedding(0.5), 8); err == nil {
			t.Error("runner failure swallowed")
		}
	})
}

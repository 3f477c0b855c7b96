package tts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-melotts/internal/testutil"
)

func writeBytes(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadSpeakerBank(t *testing.T) {
	t.Run("loads whole embeddings", func(t *testing.T) {
		dir := t.TempDir()
		path := testutil.WriteSpeakerBank(t, dir, [][]float32{
			testEmbedding(0.1),
			testEmbedding(0.2),
		})

		bank, err := LoadSpeakerBank(path, nil)
		if err != nil {
			t.Fatalf("LoadSpeakerBank: %v", err)
		}
		if bank.Count() != 2 {
			t.Fatalf("Count = %d, want 2", bank.Count())
		}
		emb := bank.Embedding(1)
		if len(emb) != EmbeddingDim || emb[0] != 0.2 {
			t.Errorf("Embedding(1) = len %d first %v", len(emb), emb[0])
		}
	})

	t.Run("out-of-range id falls back to speaker zero", func(t *testing.T) {
		dir := t.TempDir()
		path := testutil.WriteSpeakerBank(t, dir, [][]float32{testEmbedding(0.1)})

		bank, err := LoadSpeakerBank(path, nil)
		if err != nil {
			t.Fatalf("LoadSpeakerBank: %v", err)
		}
		for _, id := range []int{-1, 1, 99} {
			if emb := bank.Embedding(id); emb[0] != 0.1 {
				t.Errorf("Embedding(%d)[0] = %v, want speaker 0 value 0.1", id, emb[0])
			}
		}
	})

	t.Run("truncated blob is an error", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "speakers.bin")
		writeBytes(t, path, make([]byte, EmbeddingDim*4+3))
		if _, err := LoadSpeakerBank(path, nil); err == nil {
			t.Error("truncated blob accepted")
		}
	})

	t.Run("empty blob is an error", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "speakers.bin")
		writeBytes(t, path, nil)
		if _, err := LoadSpeakerBank(path, nil); err == nil {
			t.Error("empty blob accepted")
		}
	})

	t.Run("missing file is an error", func(t *testing.T) {
		if _, err := LoadSpeakerBank(filepath.Join(t.TempDir(), "nope.bin"), nil); err == nil {
			t.Error("missing file accepted")
		}
	})
}

package tts

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
)

// EmbeddingDim is the fixed speaker-embedding width expected by both
// inference graphs.
const EmbeddingDim = 256

// SpeakerBank holds the speaker-embedding table, loaded once at engine
// construction and read-only afterwards.
type SpeakerBank struct {
	log        *slog.Logger
	embeddings [][]float32
}

// LoadSpeakerBank reads a raw blob of N×256 little-endian float32 values.
// The speaker count is derived from the file size, which must be a whole
// multiple of one embedding.
func LoadSpeakerBank(path string, log *slog.Logger) (*SpeakerBank, error) {
	if log == nil {
		log = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read speaker embeddings: %w", err)
	}

	const embeddingBytes = EmbeddingDim * 4
	if len(data) == 0 || len(data)%embeddingBytes != 0 {
		return nil, fmt.Errorf("speaker blob %s: size %d is not a multiple of %d bytes",
			path, len(data), embeddingBytes)
	}

	count := len(data) / embeddingBytes
	embeddings := make([][]float32, count)
	for i := 0; i < count; i++ {
		emb := make([]float32, EmbeddingDim)
		base := i * embeddingBytes
		for j := 0; j < EmbeddingDim; j++ {
			bits := binary.LittleEndian.Uint32(data[base+j*4:])
			emb[j] = math.Float32frombits(bits)
		}
		embeddings[i] = emb
	}

	log.Info("speaker embeddings loaded", "speakers", count, "path", path)

	return &SpeakerBank{log: log, embeddings: embeddings}, nil
}

// Count returns the number of speakers in the bank.
func (b *SpeakerBank) Count() int { return len(b.embeddings) }

// Embedding returns the embedding for the given speaker ID. An out-of-range
// ID falls back to speaker 0 with a logged warning; it is never an error.
func (b *SpeakerBank) Embedding(id int) []float32 {
	if id < 0 || id >= len(b.embeddings) {
		b.log.Warn("speaker ID out of range, using speaker 0",
			"speaker", id, "speakers", len(b.embeddings))
		id = 0
	}
	return b.embeddings[id]
}

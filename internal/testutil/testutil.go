// Package testutil provides fixture writers and skip helpers for tests.
//
// The writers build the small on-disk assets the pipeline loads (token
// tables, lexicons, speaker blobs, model manifests) inside t.TempDir so
// package tests never depend on real model files. The Require helpers call
// t.Skip with a clear reason when a prerequisite such as the ONNX Runtime
// shared library is absent, so integration tests remain runnable in partial
// environments without failing noisily.
package testutil

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// WriteTokens writes a token table file mapping each symbol to its ID in
// slice order and returns its path.
func WriteTokens(tb testing.TB, dir string, symbols []string) string {
	tb.Helper()

	var buf []byte
	for id, sym := range symbols {
		buf = append(buf, sym...)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(id), 10)
		buf = append(buf, '\n')
	}
	return writeFile(tb, dir, "tokens.txt", buf)
}

// WriteLexicon writes a lexicon file from word to phoneme list and returns
// its path. Map iteration order does not matter to the loader.
func WriteLexicon(tb testing.TB, dir string, entries map[string][]string) string {
	tb.Helper()

	var buf []byte
	for word, phones := range entries {
		buf = append(buf, word...)
		for _, ph := range phones {
			buf = append(buf, ' ')
			buf = append(buf, ph...)
		}
		buf = append(buf, '\n')
	}
	return writeFile(tb, dir, "lexicon.txt", buf)
}

// WriteSpeakerBank writes a raw little-endian float32 speaker blob holding
// one row per embedding and returns its path.
func WriteSpeakerBank(tb testing.TB, dir string, embeddings [][]float32) string {
	tb.Helper()

	var buf []byte
	for _, emb := range embeddings {
		for _, v := range emb {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return writeFile(tb, dir, "speakers.bin", buf)
}

// GraphSpec describes one graph entry for WriteManifest.
type GraphSpec struct {
	Name     string
	Filename string
	Inputs   []map[string]any
	Outputs  []map[string]any
}

// WriteManifest writes a model manifest declaring the given graphs, creates
// an empty placeholder file for each graph path, and returns the manifest path.
func WriteManifest(tb testing.TB, dir string, graphs []GraphSpec) string {
	tb.Helper()

	type graphJSON struct {
		Name     string           `json:"name"`
		Filename string           `json:"filename"`
		Inputs   []map[string]any `json:"inputs,omitempty"`
		Outputs  []map[string]any `json:"outputs,omitempty"`
	}
	manifest := struct {
		Graphs []graphJSON `json:"graphs"`
	}{}
	for _, g := range graphs {
		manifest.Graphs = append(manifest.Graphs, graphJSON(g))
		if err := os.WriteFile(filepath.Join(dir, g.Filename), []byte("onnx"), 0o644); err != nil {
			tb.Fatalf("write graph placeholder %s: %v", g.Filename, err)
		}
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		tb.Fatalf("marshal manifest: %v", err)
	}
	return writeFile(tb, dir, "manifest.json", data)
}

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks (in order): the ORT_LIBRARY_PATH env var, then the
// MELOTTS_ORT_LIB env var, then common system library paths.
func RequireONNXRuntime(tb testing.TB) {
	tb.Helper()

	for _, env := range []string{"ORT_LIBRARY_PATH", "MELOTTS_ORT_LIB"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return // found
			}
			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
		}
	}
	// Fall back to common system locations.
	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return // found
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or MELOTTS_ORT_LIB")
}

// RequireModelDir skips the test unless MELOTTS_MODEL_DIR points at a
// directory containing a model manifest.
func RequireModelDir(tb testing.TB) string {
	tb.Helper()

	dir := os.Getenv("MELOTTS_MODEL_DIR")
	if dir == "" {
		tb.Skip("MELOTTS_MODEL_DIR not set; skipping model integration test")
	}
	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		tb.Skipf("model manifest not found in %q: %v", dir, err)
	}
	return dir
}

func writeFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", name, err)
	}
	return path
}

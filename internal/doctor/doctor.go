// Package doctor provides environment preflight checks for melotts.
package doctor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/example/go-melotts/internal/tts"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Config holds the asset paths each doctor check verifies.
type Config struct {
	// ManifestPath is the model manifest declaring the inference graphs.
	ManifestPath string
	// LexiconPath is the word-to-phoneme dictionary file.
	LexiconPath string
	// TokensPath is the phoneme symbol table file.
	TokensPath string
	// SpeakerPath is the raw speaker embedding blob.
	SpeakerPath string
	// ORTLibraryPath is the ONNX Runtime shared library. Empty skips the check.
	ORTLibraryPath string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- model manifest + graph files -------------------------------------
	if err := checkManifest(cfg.ManifestPath); err != nil {
		res.fail(fmt.Sprintf("model manifest %q: %v", cfg.ManifestPath, err))
		fmt.Fprintf(w, "%s model manifest %s: %v\n", FailMark, cfg.ManifestPath, err)
	} else {
		fmt.Fprintf(w, "%s model manifest: %s\n", PassMark, cfg.ManifestPath)
	}

	// ---- text assets ------------------------------------------------------
	checkFile(&res, w, "lexicon", cfg.LexiconPath)
	checkFile(&res, w, "token table", cfg.TokensPath)

	// ---- speaker embeddings -----------------------------------------------
	if err := checkSpeakers(cfg.SpeakerPath); err != nil {
		res.fail(fmt.Sprintf("speaker bank %q: %v", cfg.SpeakerPath, err))
		fmt.Fprintf(w, "%s speaker bank %s: %v\n", FailMark, cfg.SpeakerPath, err)
	} else {
		fmt.Fprintf(w, "%s speaker bank: %s\n", PassMark, cfg.SpeakerPath)
	}

	// ---- ONNX Runtime library ---------------------------------------------
	if cfg.ORTLibraryPath == "" {
		fmt.Fprintf(w, "%s onnxruntime library: skipped (no path configured)\n", PassMark)
	} else {
		checkFile(&res, w, "onnxruntime library", cfg.ORTLibraryPath)
	}

	return res
}

func checkFile(res *Result, w io.Writer, label, path string) {
	if _, err := os.Stat(path); err != nil {
		res.fail(fmt.Sprintf("%s %q: %v", label, path, err))
		fmt.Fprintf(w, "%s %s %s: not found\n", FailMark, label, path)
		return
	}
	fmt.Fprintf(w, "%s %s: %s\n", PassMark, label, path)
}

// checkManifest parses the manifest and verifies every declared graph file
// exists next to it.
func checkManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var manifest struct {
		Graphs []struct {
			Name     string `json:"name"`
			Filename string `json:"filename"`
		} `json:"graphs"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if len(manifest.Graphs) == 0 {
		return fmt.Errorf("no graphs declared")
	}
	dir := filepath.Dir(path)
	for _, g := range manifest.Graphs {
		p := g.Filename
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("graph %q file %q: %w", g.Name, g.Filename, err)
		}
	}
	return nil
}

// checkSpeakers verifies the blob exists and holds whole embeddings.
func checkSpeakers(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	rowBytes := int64(tts.EmbeddingDim * 4)
	if info.Size() == 0 || info.Size()%rowBytes != 0 {
		return fmt.Errorf("size %d is not a multiple of %d bytes per speaker", info.Size(), rowBytes)
	}
	return nil
}

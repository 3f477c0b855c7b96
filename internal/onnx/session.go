// Package onnx wraps the ONNX Runtime binding behind a small manifest-driven
// session model. A model directory ships a manifest.json naming each graph
// (acoustic, vocoder) together with its declared input/output tensor shapes;
// the pipeline reads those shapes instead of hard-coding model geometry.
package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// NodeInfo describes one declared graph input or output.
type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
}

// Session is the manifest entry for one ONNX graph.
type Session struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

// Input returns the declared input with the given name.
func (s Session) Input(name string) (NodeInfo, bool) {
	for _, n := range s.Inputs {
		if n.Name == name {
			return n, true
		}
	}
	return NodeInfo{}, false
}

// SessionManager holds the graphs declared by one model manifest.
type SessionManager struct {
	sessions map[string]Session
	order    []string
}

type modelManifest struct {
	Graphs []manifestGraph `json:"graphs"`
}

type manifestGraph struct {
	Name     string     `json:"name"`
	Filename string     `json:"filename"`
	Inputs   []NodeInfo `json:"inputs"`
	Outputs  []NodeInfo `json:"outputs"`
}

// NewSessionManager parses the manifest and verifies every referenced graph
// file exists. Relative filenames resolve against the manifest's directory.
func NewSessionManager(manifestPath string) (*SessionManager, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read model manifest: %w", err)
	}

	var manifest modelManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode model manifest: %w", err)
	}

	if len(manifest.Graphs) == 0 {
		return nil, errors.New("model manifest has no graphs")
	}

	baseDir := filepath.Dir(manifestPath)
	sm := &SessionManager{
		sessions: make(map[string]Session, len(manifest.Graphs)),
		order:    make([]string, 0, len(manifest.Graphs)),
	}

	for _, g := range manifest.Graphs {
		if g.Name == "" {
			return nil, errors.New("manifest graph has empty name")
		}
		if g.Filename == "" {
			return nil, fmt.Errorf("manifest graph %q has empty filename", g.Name)
		}
		if _, exists := sm.sessions[g.Name]; exists {
			return nil, fmt.Errorf("duplicate graph name %q in manifest", g.Name)
		}

		sessionPath := g.Filename
		if !filepath.IsAbs(sessionPath) {
			sessionPath = filepath.Join(baseDir, g.Filename)
		}
		sessionPath = filepath.Clean(sessionPath)
		if _, err := os.Stat(sessionPath); err != nil {
			return nil, fmt.Errorf("graph file for %q: %w", g.Name, err)
		}

		sm.sessions[g.Name] = Session{
			Name:    g.Name,
			Path:    sessionPath,
			Inputs:  append([]NodeInfo(nil), g.Inputs...),
			Outputs: append([]NodeInfo(nil), g.Outputs...),
		}
		sm.order = append(sm.order, g.Name)

		slog.Info("declared ONNX graph",
			"name", g.Name,
			"path", sessionPath,
			"inputs", nodeNames(g.Inputs),
			"outputs", nodeNames(g.Outputs),
		)
	}

	return sm, nil
}

// Session returns the manifest entry with the given name.
func (m *SessionManager) Session(name string) (Session, bool) {
	s, ok := m.sessions[name]
	return s, ok
}

// Sessions returns all manifest entries in declaration order.
func (m *SessionManager) Sessions() []Session {
	out := make([]Session, 0, len(m.order))
	for _, name := range m.order {
		s := m.sessions[name]
		s.Inputs = append([]NodeInfo(nil), s.Inputs...)
		s.Outputs = append([]NodeInfo(nil), s.Outputs...)
		out = append(out, s)
	}
	return out
}

func nodeNames(nodes []NodeInfo) string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return strings.Join(names, ",")
}

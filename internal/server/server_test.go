package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/go-melotts/internal/tts"
)

type stubSynth struct {
	wav  []byte
	err  error
	seen struct {
		text     string
		language string
	}
}

func (s *stubSynth) SynthesizeWAV(_ context.Context, text, language string) ([]byte, error) {
	s.seen.text = text
	s.seen.language = language
	if s.err != nil {
		return nil, s.err
	}
	return s.wav, nil
}

type stubSpeakers int

func (s stubSpeakers) Speakers() int { return int(s) }

func newTestHandler(synth *stubSynth, opts ...Option) http.Handler {
	base := []Option{WithLogger(slog.Default())}
	return NewHandler(synth, stubSpeakers(3), append(base, opts...)...)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(&stubSynth{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestVoicesEndpoint(t *testing.T) {
	h := newTestHandler(&stubSynth{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/voices", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Speakers []int `json:"speakers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Speakers) != 3 || body.Speakers[2] != 2 {
		t.Errorf("speakers = %v, want [0 1 2]", body.Speakers)
	}
}

func ttsRequestBody(text, language string) *bytes.Reader {
	b, _ := json.Marshal(map[string]string{"text": text, "language": language})
	return bytes.NewReader(b)
}

func TestTTSEndpoint(t *testing.T) {
	t.Run("success returns WAV bytes", func(t *testing.T) {
		synth := &stubSynth{wav: []byte("RIFFfake")}
		h := newTestHandler(synth)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tts", ttsRequestBody("你好", "zh")))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("Content-Type = %q, want audio/wav", ct)
		}
		if rec.Body.String() != "RIFFfake" {
			t.Errorf("body = %q", rec.Body.String())
		}
		if synth.seen.text != "你好" || synth.seen.language != "zh" {
			t.Errorf("synthesizer saw (%q, %q)", synth.seen.text, synth.seen.language)
		}
	})

	t.Run("language defaults to zh", func(t *testing.T) {
		synth := &stubSynth{wav: []byte("RIFF")}
		h := newTestHandler(synth)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader(`{"text":"hi"}`)))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if synth.seen.language != "zh" {
			t.Errorf("language = %q, want default zh", synth.seen.language)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		h := newTestHandler(&stubSynth{})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tts", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		h := newTestHandler(&stubSynth{})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader("{nope")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing text", func(t *testing.T) {
		h := newTestHandler(&stubSynth{})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader(`{"language":"zh"}`)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("oversized text", func(t *testing.T) {
		h := newTestHandler(&stubSynth{}, WithMaxTextBytes(8))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tts", ttsRequestBody("way too long for 8 bytes", "zh")))
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})

	t.Run("engine validation error maps to 400", func(t *testing.T) {
		h := newTestHandler(&stubSynth{err: tts.ErrUnsupportedLanguage})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tts", ttsRequestBody("hi", "xx")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("timeout maps to 504", func(t *testing.T) {
		h := newTestHandler(&stubSynth{err: context.DeadlineExceeded})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tts", ttsRequestBody("hi", "zh")))
		if rec.Code != http.StatusGatewayTimeout {
			t.Errorf("status = %d, want 504", rec.Code)
		}
	})

	t.Run("engine failure maps to 500", func(t *testing.T) {
		h := newTestHandler(&stubSynth{err: errors.New("graph exploded")})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tts", ttsRequestBody("hi", "zh")))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

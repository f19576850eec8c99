package engines

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/speakstream/internal/tts"
)

func TestOpenAIEngine_Synthesize(t *testing.T) {
	var got speechRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Decode request: %v", err)
		}
		w.Write([]byte("PCMDATA"))
	}))
	defer srv.Close()

	e := NewOpenAIEngine(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	rc, err := e.Synthesize(context.Background(), tts.Request{Text: "Hello.", Voice: "alloy", Format: tts.FormatPCM})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "PCMDATA" {
		t.Errorf("Expected PCMDATA, got %q", data)
	}
	if got.Model != "tts-1" || got.Input != "Hello." || got.Voice != "alloy" || got.Format != "pcm" {
		t.Errorf("Unexpected request body: %+v", got)
	}
	if auth != "Bearer secret" {
		t.Errorf("Expected bearer auth, got %q", auth)
	}
}

func TestOpenAIEngine_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Authorization"), "slow") {
			time.Sleep(500 * time.Millisecond)
		}
		http.Error(w, "voice not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	t.Run("status", func(t *testing.T) {
		e := NewOpenAIEngine(OpenAIConfig{BaseURL: srv.URL})
		_, err := e.Synthesize(context.Background(), tts.Request{Text: "Hi there.", Voice: "nope"})
		if err == nil || !strings.Contains(err.Error(), "status 400") || !strings.Contains(err.Error(), "voice not found") {
			t.Errorf("Expected status error, got %v", err)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		e := NewOpenAIEngine(OpenAIConfig{BaseURL: srv.URL})
		if _, err := e.Synthesize(context.Background(), tts.Request{Text: "  "}); err == nil {
			t.Error("Expected error for empty text")
		}
	})

	t.Run("context deadline", func(t *testing.T) {
		e := NewOpenAIEngine(OpenAIConfig{BaseURL: srv.URL, APIKey: "slow"})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		start := time.Now()
		if _, err := e.Synthesize(ctx, tts.Request{Text: "Hi there."}); err == nil {
			t.Error("Expected deadline error")
		}
		if time.Since(start) > 400*time.Millisecond {
			t.Errorf("Expected request to abort at deadline, took %v", time.Since(start))
		}
	})
}

func TestOpenAIEngine_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	// One token, refilled once per minute: the second call must wait and
	// therefore hit the context deadline.
	e := NewOpenAIEngine(OpenAIConfig{BaseURL: srv.URL, RequestsPerMinute: 1})
	rc, err := e.Synthesize(context.Background(), tts.Request{Text: "First."})
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := e.Synthesize(ctx, tts.Request{Text: "Second."}); err == nil {
		t.Error("Expected rate limiter to block second request")
	}
}

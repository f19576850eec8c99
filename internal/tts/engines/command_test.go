package engines

import (
	"context"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"github.com/dgnsrekt/speakstream/internal/tts"
)

func TestNewCommandEngine(t *testing.T) {
	tests := []struct {
		command string
		wantErr bool
	}{
		{"piper --model 'en US.onnx' --output-raw", false},
		{"", true},
		{"unterminated 'quote", true},
	}
	for _, tt := range tests {
		_, err := NewCommandEngine(tt.command, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewCommandEngine(%q) error = %v, wantErr %v", tt.command, err, tt.wantErr)
		}
	}
}

func TestCommandEngine_Synthesize(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	e, err := NewCommandEngine(`sh -c 'printf "%s:" "$1"; cat' synth {voice}`, nil)
	if err != nil {
		t.Fatal(err)
	}

	rc, err := e.Synthesize(context.Background(), tts.Request{Text: "Hello.", Voice: "amy", Format: tts.FormatWAV})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "amy:Hello." {
		t.Errorf("Expected voice placeholder and stdin echo, got %q", data)
	}

	failing, _ := NewCommandEngine(`sh -c 'echo bad voice >&2; exit 1'`, nil)
	_, err = failing.Synthesize(context.Background(), tts.Request{Text: "Hello."})
	if err == nil || !strings.Contains(err.Error(), "bad voice") {
		t.Errorf("Expected stderr in error, got %v", err)
	}

	silent, _ := NewCommandEngine(`sh -c 'cat >/dev/null'`, nil)
	if _, err := silent.Synthesize(context.Background(), tts.Request{Text: "Hello."}); err == nil {
		t.Error("Expected error for empty output")
	}
}

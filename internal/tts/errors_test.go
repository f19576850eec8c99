package tts

import (
	"errors"
	"fmt"
	"testing"
)

func TestTTSError_Classes(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		synthesis bool
		transcode bool
		playback  bool
		fatal     bool
	}{
		{ErrorCodeSynthesisFailed, true, false, false, false},
		{ErrorCodeSynthesisTimeout, true, false, false, false},
		{ErrorCodeSaveTimeout, true, false, false, false},
		{ErrorCodeDecodeFailed, true, false, false, false},
		{ErrorCodeTranscodeFailed, false, true, false, false},
		{ErrorCodeTranscoderMissing, false, true, false, false},
		{ErrorCodePlaybackFailed, false, false, true, false},
		{ErrorCodeDeviceUnavailable, false, false, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewTTSError(tt.code, "boom", nil))
			if got := IsSynthesisError(err); got != tt.synthesis {
				t.Errorf("IsSynthesisError = %v, expected %v", got, tt.synthesis)
			}
			if got := IsTranscodeError(err); got != tt.transcode {
				t.Errorf("IsTranscodeError = %v, expected %v", got, tt.transcode)
			}
			if got := IsPlaybackError(err); got != tt.playback {
				t.Errorf("IsPlaybackError = %v, expected %v", got, tt.playback)
			}
			var te *TTSError
			if !errors.As(err, &te) {
				t.Fatal("Expected TTSError in chain")
			}
			if te.IsFatal() != tt.fatal {
				t.Errorf("IsFatal = %v, expected %v", te.IsFatal(), tt.fatal)
			}
		})
	}
}

func TestTTSError_UnwrapAndMessage(t *testing.T) {
	err := NewTTSError(ErrorCodeSynthesisTimeout, "request exceeded 15s", ErrTimeout).
		WithContext("index", 3)

	if !errors.Is(err, ErrTimeout) {
		t.Error("Expected errors.Is to find ErrTimeout")
	}
	if got := err.Error(); got != "SYNTHESIS_TIMEOUT: request exceeded 15s: operation timed out" {
		t.Errorf("Unexpected message: %s", got)
	}
	if err.Context["index"] != 3 {
		t.Errorf("Expected context index 3, got %v", err.Context["index"])
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("Expected empty code for plain error")
	}
}

func TestValidateSpeed(t *testing.T) {
	tests := []struct {
		speed float64
		ok    bool
	}{
		{0.49, false},
		{0.5, true},
		{1.0, true},
		{2.5, true},
		{100, true},
		{100.1, false},
	}
	for _, tt := range tests {
		err := ValidateSpeed(tt.speed)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateSpeed(%v) = %v, expected ok=%v", tt.speed, err, tt.ok)
		}
	}
	if NeedsTempo(1.0) {
		t.Error("Expected no tempo change at 1.0")
	}
	if !NeedsTempo(1.5) {
		t.Error("Expected tempo change at 1.5")
	}
}

func TestResult(t *testing.T) {
	job := Job{Index: 1, Text: "Hello there."}

	failed := Failed(job, nil)
	if failed.OK() {
		t.Error("Expected failed result not OK")
	}
	if !errors.Is(failed.Err, ErrSynthesisFailed) {
		t.Errorf("Expected default ErrSynthesisFailed, got %v", failed.Err)
	}
	if failed.Text() != job.Text {
		t.Errorf("Expected text %q, got %q", job.Text, failed.Text())
	}
	if err := failed.Discard(); err != nil {
		t.Errorf("Discard on failed result: %v", err)
	}

	ok := Succeeded(job, &AudioHandle{Path: t.TempDir() + "/missing.pcm", Format: FormatPCM})
	if !ok.OK() || ok.Message() != "" {
		t.Error("Expected successful result")
	}
	if err := ok.Discard(); err != nil {
		t.Errorf("Discard of missing file should be a no-op, got %v", err)
	}
}

package tts

import (
	"errors"
	"fmt"
)

// Common pipeline errors
var (
	// ErrSynthesisFailed indicates the synthesis service returned no usable audio
	ErrSynthesisFailed = errors.New("text synthesis failed")

	// ErrTranscoderMissing indicates the transcoder binary could not be launched
	ErrTranscoderMissing = errors.New("audio transcoder not found")

	// ErrAudioDeviceUnavailable indicates no output device could be opened
	ErrAudioDeviceUnavailable = errors.New("audio device unavailable")

	// ErrInvalidSpeed indicates speed value is out of range
	ErrInvalidSpeed = fmt.Errorf("speed must be between %.1f and %.1f", MinSpeed, MaxSpeed)

	// ErrUnsupportedFormat indicates an audio format the pipeline cannot decode
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// TTSError represents a pipeline error with additional context
type TTSError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TTSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TTSError) Unwrap() error {
	return e.Cause
}

// ErrorCode identifies specific error types
type ErrorCode string

const (
	// Synthesis errors
	ErrorCodeSynthesisFailed  ErrorCode = "SYNTHESIS_FAILED"
	ErrorCodeSynthesisTimeout ErrorCode = "SYNTHESIS_TIMEOUT"
	ErrorCodeSaveTimeout      ErrorCode = "SAVE_TIMEOUT"
	ErrorCodeDecodeFailed     ErrorCode = "DECODE_FAILED"

	// Transcode errors
	ErrorCodeTranscodeFailed   ErrorCode = "TRANSCODE_FAILED"
	ErrorCodeTranscoderMissing ErrorCode = "TRANSCODER_MISSING"

	// Playback errors
	ErrorCodePlaybackFailed    ErrorCode = "PLAYBACK_FAILED"
	ErrorCodeDeviceUnavailable ErrorCode = "DEVICE_UNAVAILABLE"
)

// NewTTSError creates a new error with context
func NewTTSError(code ErrorCode, message string, cause error) *TTSError {
	return &TTSError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *TTSError) WithContext(key string, value interface{}) *TTSError {
	e.Context[key] = value
	return e
}

// IsFatal returns true if the error should stop the engine.
// Only the absence of an output device is fatal; everything else is
// recovered per sentence.
func (e *TTSError) IsFatal() bool {
	return e.Code == ErrorCodeDeviceUnavailable
}

// IsRetryable returns true if the operation can be retried
func (e *TTSError) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeSynthesisTimeout, ErrorCodeSaveTimeout:
		return true
	default:
		return false
	}
}

// CodeOf returns the error code carried by err, or "" if err is not a TTSError.
func CodeOf(err error) ErrorCode {
	var te *TTSError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsSynthesisError reports whether err belongs to the synthesis class.
func IsSynthesisError(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeSynthesisFailed, ErrorCodeSynthesisTimeout, ErrorCodeSaveTimeout, ErrorCodeDecodeFailed:
		return true
	}
	return false
}

// IsTranscodeError reports whether err belongs to the transcode class.
func IsTranscodeError(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeTranscodeFailed, ErrorCodeTranscoderMissing:
		return true
	}
	return false
}

// IsPlaybackError reports whether err belongs to the playback class.
func IsPlaybackError(err error) bool {
	switch CodeOf(err) {
	case ErrorCodePlaybackFailed, ErrorCodeDeviceUnavailable:
		return true
	}
	return false
}

package tts

import (
	"errors"
	"os"
)

// Format identifies the encoding of synthesized audio on disk.
type Format string

const (
	// FormatPCM is raw signed 16-bit little-endian samples
	FormatPCM Format = "pcm"

	// FormatWAV is a RIFF/WAVE container
	FormatWAV Format = "wav"
)

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// Valid reports whether the format is one the pipeline can play.
func (f Format) Valid() bool {
	return f == FormatPCM || f == FormatWAV
}

// Request is a single call to a synthesis service.
type Request struct {
	Text   string
	Voice  string
	Format Format
}

// Job is one sentence scheduled for synthesis. It is immutable once created.
type Job struct {
	Index uint64  // Submission index, monotonic per stream
	Epoch uint64  // Interrupt generation the job was created in
	Text  string  // Sentence text
	Voice string  // Voice identifier
	Speed float64 // Tempo multiplier
}

// AudioHandle references synthesized audio materialized on disk.
type AudioHandle struct {
	Path   string
	Format Format
}

// Remove deletes the underlying file.
func (h *AudioHandle) Remove() error {
	if h == nil || h.Path == "" {
		return nil
	}
	if err := os.Remove(h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Result is the terminal outcome of a Job. Exactly one of Audio and Err is set.
type Result struct {
	Job   Job
	Audio *AudioHandle
	Err   error
}

// Succeeded wraps audio for job.
func Succeeded(job Job, audio *AudioHandle) Result {
	return Result{Job: job, Audio: audio}
}

// Failed wraps err for job.
func Failed(job Job, err error) Result {
	if err == nil {
		err = ErrSynthesisFailed
	}
	return Result{Job: job, Err: err}
}

// OK reports whether the result carries audio.
func (r Result) OK() bool {
	return r.Err == nil && r.Audio != nil
}

// Text returns the sentence the result was produced for.
func (r Result) Text() string {
	return r.Job.Text
}

// Message returns the failure description, or "" on success.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Discard releases any audio held by the result.
func (r Result) Discard() error {
	return r.Audio.Remove()
}

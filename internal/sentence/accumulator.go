package sentence

import (
	"strings"
	"unicode"
)

// Default boundary thresholds, measured in characters (runes).
const (
	DefaultMinLength  = 15
	DefaultSoftLength = 200
	DefaultHardLength = 300
)

// Options controls where the accumulator cuts.
type Options struct {
	// MinLength is the length a buffer must exceed before a terminator
	// followed by whitespace ends a sentence.
	MinLength int
	// SoftLength is the length past which any trailing whitespace ends a sentence.
	SoftLength int
	// HardLength is the length at which the buffer is emitted unconditionally.
	HardLength int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		MinLength:  DefaultMinLength,
		SoftLength: DefaultSoftLength,
		HardLength: DefaultHardLength,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MinLength <= 0 {
		o.MinLength = d.MinLength
	}
	if o.SoftLength <= 0 {
		o.SoftLength = d.SoftLength
	}
	if o.HardLength <= 0 {
		o.HardLength = d.HardLength
	}
	return o
}

// Accumulator buffers text fragments and emits sentences at boundaries.
//
// It is not safe for concurrent use; callers serialize access.
type Accumulator struct {
	opts Options
	buf  []rune
}

// NewAccumulator creates an accumulator. Zero fields in opts take defaults.
func NewAccumulator(opts Options) *Accumulator {
	opts = opts.normalized()
	return &Accumulator{
		opts: opts,
		buf:  make([]rune, 0, opts.HardLength),
	}
}

// AddToken appends a fragment and returns any sentences completed by it,
// in order. Boundaries are evaluated after every appended character.
func (a *Accumulator) AddToken(fragment string) []string {
	var out []string
	for _, r := range fragment {
		a.buf = append(a.buf, r)
		if a.atBoundary() {
			if s, ok := a.flush(); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// CompleteSentence flushes whatever is buffered. It reports false when the
// buffer held nothing but whitespace.
func (a *Accumulator) CompleteSentence() (string, bool) {
	return a.flush()
}

// ClearBuffer discards buffered text without emitting it.
func (a *Accumulator) ClearBuffer() {
	a.buf = a.buf[:0]
}

// Len returns the number of buffered characters.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

func (a *Accumulator) atBoundary() bool {
	n := len(a.buf)
	if n >= a.opts.HardLength {
		return true
	}
	last := a.buf[n-1]
	if n > a.opts.SoftLength && unicode.IsSpace(last) {
		return true
	}
	return n > a.opts.MinLength && unicode.IsSpace(last) && isTerminator(a.buf[n-2])
}

func (a *Accumulator) flush() (string, bool) {
	s := strings.TrimSpace(string(a.buf))
	a.buf = a.buf[:0]
	return s, s != ""
}

func isTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

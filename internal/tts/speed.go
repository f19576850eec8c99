package tts

import "math"

// Speed limits accepted by the atempo filter.
const (
	MinSpeed     = 0.5
	MaxSpeed     = 100.0
	DefaultSpeed = 1.0
)

// ValidateSpeed checks that speed is a usable tempo multiplier.
func ValidateSpeed(speed float64) error {
	if math.IsNaN(speed) || speed < MinSpeed || speed > MaxSpeed {
		return ErrInvalidSpeed
	}
	return nil
}

// NeedsTempo reports whether audio synthesized at normal rate must be
// transcoded to play at speed.
func NeedsTempo(speed float64) bool {
	return math.Abs(speed-DefaultSpeed) > 1e-9
}

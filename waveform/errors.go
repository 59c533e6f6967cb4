package waveform

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the root of every error produced while validating
// waveform parameters.  No instrument has been touched when one is returned.
var ErrConfiguration = errors.New("waveform: invalid configuration")

// ConfigurationError describes a parameter that can not be used
type ConfigurationError struct {
	// Field is the offending parameter, e.g. "pulseWidth.anodic"
	Field string

	// Reason says what is wrong with it
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("waveform: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) true
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// RangeError is an amplitude outside the electrically safe range for its polarity.
// It is a configuration error.
type RangeError struct {
	Polarity Polarity
	// Cycle is the 1-based cycle the amplitude belongs to
	Cycle int
	Value float64
}

func (e *RangeError) Error() string {
	lo, hi := AmplitudeRange(e.Polarity)
	return fmt.Sprintf("waveform: %s current amplitude must be in the range [%g, %g] A, got %g (cycle %d)",
		e.Polarity, lo, hi, e.Value, e.Cycle)
}

// Is makes errors.Is(err, ErrConfiguration) true
func (e *RangeError) Is(target error) bool {
	return target == ErrConfiguration
}

// Package smu describes source-measure units as the experiment engine sees
// them: something that can be configured, told to source a level, switched on
// and off, have its clock reset, and asked for one reading at a time.
//
// Concrete drivers live in their own packages (keithley) and translate these
// calls into the instrument's command language.
package smu

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultDigits is the number of significant digits readings are rounded to
// when the caller does not say otherwise
const DefaultDigits = 9

// ErrInstrumentIO is the sentinel every transport failure or timeout
// satisfies via errors.Is
var ErrInstrumentIO = errors.New("smu: instrument I/O failure")

// IOError records the operation that failed talking to the instrument
type IOError struct {
	// Op is a short name of the operation, e.g. "set level"
	Op string

	// Err is the underlying transport error
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("smu: %s: %v", e.Op, e.Err)
}

// Unwrap returns the transport error
func (e *IOError) Unwrap() error {
	return e.Err
}

// Is makes IOError match ErrInstrumentIO
func (e *IOError) Is(target error) bool {
	return target == ErrInstrumentIO
}

// SourceMode is the quantity the SMU drives
type SourceMode int

const (
	// SourceCurrent drives a current and limits the voltage
	SourceCurrent SourceMode = iota
	// SourceVoltage drives a voltage and limits the current
	SourceVoltage
)

// Quantity is the human name of the sourced quantity
func (m SourceMode) Quantity() string {
	if m == SourceVoltage {
		return "Voltage"
	}
	return "Current"
}

// Unit is the SI unit of the sourced quantity
func (m SourceMode) Unit() string {
	if m == SourceVoltage {
		return "V"
	}
	return "A"
}

func (m SourceMode) String() string {
	return strings.ToLower(m.Quantity())
}

// MeasureMode is the quantity the SMU measures
type MeasureMode int

const (
	// MeasureVoltage measures DC voltage
	MeasureVoltage MeasureMode = iota
	// MeasureCurrent measures DC current
	MeasureCurrent
	// MeasureResistance measures resistance (ohmmeter)
	MeasureResistance
)

// Quantity is the human name of the measured quantity
func (m MeasureMode) Quantity() string {
	switch m {
	case MeasureCurrent:
		return "Current"
	case MeasureResistance:
		return "Resistance"
	default:
		return "Voltage"
	}
}

// Unit is the SI unit of the measured quantity
func (m MeasureMode) Unit() string {
	switch m {
	case MeasureCurrent:
		return "A"
	case MeasureResistance:
		return "Ohm"
	default:
		return "V"
	}
}

func (m MeasureMode) String() string {
	return strings.ToLower(m.Quantity())
}

// Sense is the wiring used for measurement
type Sense int

const (
	// TwoWire senses through the force leads
	TwoWire Sense = iota
	// FourWire uses separate sense leads (Kelvin)
	FourWire
)

func (s Sense) String() string {
	if s == FourWire {
		return "4-wire"
	}
	return "2-wire"
}

// ParseSense converts "2", "4", "2-wire", "4wire" etc to a Sense
func ParseSense(s string) (Sense, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "2", "2w", "2wire", "2-wire", "two":
		return TwoWire, nil
	case "4", "4w", "4wire", "4-wire", "four", "kelvin":
		return FourWire, nil
	}
	return TwoWire, fmt.Errorf("smu: unknown sense mode %q", s)
}

// Config is applied to the instrument once, before output is enabled
type Config struct {
	Source  SourceMode
	Measure MeasureMode

	// Level is the initial source level
	Level float64

	// Limit is the compliance limit on the unsourced quantity, e.g. the
	// voltage limit while sourcing current
	Limit float64

	Sense Sense
}

// Reading is one (time, source, measured) triple as returned by the SMU
type Reading struct {
	// Elapsed is the instrument clock in seconds since the last ResetClock
	Elapsed float64

	// Source is the source readback
	Source float64

	// Measured is the measured value
	Measured float64
}

// Instrument is the capability the experiment engine drives.
// Calls are never made concurrently.
type Instrument interface {
	// Configure resets the instrument and applies cfg.  Output is left off.
	Configure(Config) error

	// SetLevel changes the source level
	SetLevel(float64) error

	// SetOutput turns the output on or off
	SetOutput(bool) error

	// ResetClock zeroes the instrument clock that Reading.Elapsed is measured on
	ResetClock() error

	// SampleOnce takes one measurement, rounding every field to the
	// given number of significant digits
	SampleOnce(digits int) (Reading, error)

	// Close clears the instrument's reading buffer and releases the connection
	Close() error
}

// Identifier is implemented by instruments that can report their identity
type Identifier interface {
	Identify() (string, error)
}

// Rawer is implemented by instruments that accept raw command text
type Rawer interface {
	Raw(string) (string, error)
}

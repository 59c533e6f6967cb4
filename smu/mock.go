package smu

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nasa-jpl/cicpulse/mathx"
)

// Mock is an in-memory SMU with a scripted clock.  It behaves like a resistor
// of value Ohms on the output: the measured value is Level*Ohms while the
// output is on, and zero otherwise.
//
// Each SampleOnce advances the clock by Step seconds.  If Times is not empty,
// samples take their elapsed values from it in order instead, ignoring
// ResetClock; this is how clock discontinuities are scripted.
type Mock struct {
	sync.Mutex

	// Step is the clock advance per sample, s
	Step float64

	// Times, if set, scripts the elapsed value of every sample
	Times []float64

	// Ohms is the load resistance
	Ohms float64

	// FailAfter makes SampleOnce return an IOError once this many samples
	// have been taken; 0 never fails
	FailAfter int

	// FailOn makes calls whose log entry starts with it, "level" or
	// "reset clock" say, return an IOError once FailOnAfter of them have
	// succeeded; empty never fails
	FailOn      string
	FailOnAfter int

	// ID is returned by Identify
	ID string

	cfg     Config
	level   float64
	output  bool
	clock   float64
	samples int
	closed  bool
	matched int

	// Calls logs every call made on the mock, in order
	Calls []string

	// Levels logs every level set, including the configured one
	Levels []float64
}

// NewMock returns a mock that advances 10 ms per sample into a 1 kOhm load
func NewMock() *Mock {
	return &Mock{Step: 0.01, Ohms: 1e3, ID: "KEITHLEY INSTRUMENTS,MODEL 2450,MOCK,0.0.0"}
}

var (
	errMockClosed = errors.New("smu: mock is closed")
	errMockFault  = errors.New("mock: instrument stopped responding")
)

func (m *Mock) call(s string) error {
	m.Calls = append(m.Calls, s)
	if m.closed {
		return &IOError{Op: s, Err: errMockClosed}
	}
	if m.FailOn != "" && strings.HasPrefix(s, m.FailOn) {
		if m.matched >= m.FailOnAfter {
			return &IOError{Op: s, Err: errMockFault}
		}
		m.matched++
	}
	return nil
}

// Configure records the config and sets the initial level
func (m *Mock) Configure(c Config) error {
	m.Lock()
	defer m.Unlock()
	if err := m.call("configure"); err != nil {
		return err
	}
	m.cfg = c
	m.level = c.Level
	m.output = false
	m.Levels = append(m.Levels, c.Level)
	return nil
}

// SetLevel sets the source level
func (m *Mock) SetLevel(l float64) error {
	m.Lock()
	defer m.Unlock()
	if err := m.call(fmt.Sprintf("level %g", l)); err != nil {
		return err
	}
	m.level = l
	m.Levels = append(m.Levels, l)
	return nil
}

// SetOutput turns the mock output on or off
func (m *Mock) SetOutput(on bool) error {
	m.Lock()
	defer m.Unlock()
	s := "output off"
	if on {
		s = "output on"
	}
	if err := m.call(s); err != nil {
		return err
	}
	m.output = on
	return nil
}

// Output returns true if the output is on
func (m *Mock) Output() bool {
	m.Lock()
	defer m.Unlock()
	return m.output
}

// ResetClock zeroes the mock clock
func (m *Mock) ResetClock() error {
	m.Lock()
	defer m.Unlock()
	if err := m.call("reset clock"); err != nil {
		return err
	}
	m.clock = 0
	return nil
}

// SampleOnce returns the next reading
func (m *Mock) SampleOnce(digits int) (Reading, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.call("sample"); err != nil {
		return Reading{}, err
	}
	if m.FailAfter > 0 && m.samples >= m.FailAfter {
		return Reading{}, &IOError{Op: "sample", Err: errors.New("mock: read timed out")}
	}
	var t float64
	if len(m.Times) > 0 {
		t = m.Times[m.samples%len(m.Times)]
	} else {
		m.clock += m.Step
		t = m.clock
	}
	m.samples++
	src := m.level
	meas := 0.
	if m.output {
		switch m.cfg.Measure {
		case MeasureResistance:
			meas = m.Ohms
		case MeasureCurrent:
			if m.Ohms != 0 {
				meas = m.level / m.Ohms
			}
		default:
			meas = m.level * m.Ohms
		}
	}
	return Reading{
		Elapsed:  mathx.RoundSig(t, digits),
		Source:   mathx.RoundSig(src, digits),
		Measured: mathx.RoundSig(meas, digits),
	}, nil
}

// Samples is the number of successful SampleOnce calls
func (m *Mock) Samples() int {
	m.Lock()
	defer m.Unlock()
	return m.samples
}

// Close marks the mock closed; later calls fail
func (m *Mock) Close() error {
	m.Lock()
	defer m.Unlock()
	m.Calls = append(m.Calls, "close")
	m.closed = true
	return nil
}

// Closed returns true once Close has been called
func (m *Mock) Closed() bool {
	m.Lock()
	defer m.Unlock()
	return m.closed
}

// Identify returns the mock ID string
func (m *Mock) Identify() (string, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.call("identify"); err != nil {
		return "", err
	}
	return m.ID, nil
}

// Raw echoes the command
func (m *Mock) Raw(s string) (string, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.call("raw " + s); err != nil {
		return "", err
	}
	return s, nil
}

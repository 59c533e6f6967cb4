package experiment

import (
	"fmt"

	"github.com/nasa-jpl/cicpulse/smu"
	"github.com/nasa-jpl/cicpulse/util"
	"github.com/nasa-jpl/cicpulse/waveform"
)

// Impedance configures an ohmmeter reading: a test current is sourced and
// the resistance it sees is measured
type Impedance struct {
	// Current is the test current, A
	Current float64

	// Limit is the voltage compliance, V
	Limit float64

	Sense  smu.Sense
	Digits int
}

// MeasureImpedance takes one resistance reading.  The output is turned off
// and the instrument closed before it returns.
func MeasureImpedance(open Opener, z Impedance) (ohms float64, err error) {
	if !util.Within(z.Current, -waveform.MaxCurrent, waveform.MaxCurrent) {
		return 0, &waveform.ConfigurationError{Field: "current",
			Reason: fmt.Sprintf("must be in [%g, %g] A, got %g", -waveform.MaxCurrent, waveform.MaxCurrent, z.Current)}
	}
	if z.Limit <= 0 {
		return 0, &waveform.ConfigurationError{Field: "limit", Reason: fmt.Sprintf("must be positive, got %g", z.Limit)}
	}
	inst, err := open()
	if err != nil {
		return 0, err
	}
	defer func() {
		if oerr := inst.SetOutput(false); oerr != nil && err == nil {
			err = oerr
		}
		if cerr := inst.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	err = inst.Configure(smu.Config{
		Source:  smu.SourceCurrent,
		Measure: smu.MeasureResistance,
		Level:   z.Current,
		Limit:   z.Limit,
		Sense:   z.Sense,
	})
	if err != nil {
		return 0, err
	}
	if err = inst.SetOutput(true); err != nil {
		return 0, err
	}
	digits := z.Digits
	if digits <= 0 {
		digits = smu.DefaultDigits
	}
	r, err := inst.SampleOnce(digits)
	if err != nil {
		return 0, err
	}
	return r.Measured, nil
}

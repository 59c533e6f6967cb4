// Package waveform describes current pulse experiments: the parameters a lab
// engineer writes down, their validation, and their expansion into per-cycle
// plans and timed phases that a sequencer can play on a source-measure unit.
//
// All durations are in seconds and all amplitudes in amperes, matching the
// units the instrument reports.
package waveform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nasa-jpl/cicpulse/util"
)

// MaxCurrent is the largest current magnitude the SMU may source, in amperes
const MaxCurrent = 1.05

// Polarity is the direction of a current phase
type Polarity int

const (
	// Anodic is a positive-going current phase
	Anodic Polarity = iota
	// Cathodic is a negative-going current phase
	Cathodic
)

func (p Polarity) String() string {
	switch p {
	case Anodic:
		return "anodic"
	case Cathodic:
		return "cathodic"
	}
	return fmt.Sprintf("Polarity(%d)", int(p))
}

// Other returns the opposite polarity
func (p Polarity) Other() Polarity {
	if p == Anodic {
		return Cathodic
	}
	return Anodic
}

// ParsePolarity converts "anodic" or "cathodic" (any case) to a Polarity
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anodic", "":
		return Anodic, nil
	case "cathodic":
		return Cathodic, nil
	}
	return Anodic, &ConfigurationError{Field: "polarity", Reason: fmt.Sprintf("%q is not anodic or cathodic", s)}
}

// AmplitudeRange returns the inclusive range of allowed amplitudes for a polarity
func AmplitudeRange(p Polarity) (lo, hi float64) {
	if p == Cathodic {
		return -MaxCurrent, 0
	}
	return 0, MaxCurrent
}

// CheckAmplitude returns a *RangeError if a is not allowed for polarity p.
// cycle is only used to label the error.
func CheckAmplitude(p Polarity, a float64, cycle int) error {
	lo, hi := AmplitudeRange(p)
	if !util.Within(a, lo, hi) {
		return &RangeError{Polarity: p, Cycle: cycle, Value: a}
	}
	return nil
}

// Kind is the number of phases in a pulse
type Kind int

const (
	// Biphasic pulses have an anodic and a cathodic phase
	Biphasic Kind = iota
	// Monophasic pulses have a single phase of one polarity
	Monophasic
)

func (k Kind) String() string {
	if k == Monophasic {
		return "monophasic"
	}
	return "biphasic"
}

// ParseKind converts "monophasic" or "biphasic" (any case) to a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "biphasic", "":
		return Biphasic, nil
	case "monophasic":
		return Monophasic, nil
	}
	return Biphasic, &ConfigurationError{Field: "kind", Reason: fmt.Sprintf("%q is not monophasic or biphasic", s)}
}

// Shape selects which of the four experiment variants is run
type Shape struct {
	Kind Kind

	// Polarity is the phase played by a monophasic pulse; unused when biphasic
	Polarity Polarity

	// Train repeats the pulse NumPulses times with rests between.
	// A single pulse requires NumPulses == 1 and has no rests.
	Train bool
}

func (s Shape) String() string {
	var b strings.Builder
	if s.Kind == Monophasic {
		b.WriteString(s.Polarity.String())
		b.WriteByte(' ')
	}
	b.WriteString(s.Kind.String())
	if s.Train {
		b.WriteString(" pulse train")
	} else {
		b.WriteString(" pulse")
	}
	return b.String()
}

// Pair holds a field that has an anodic and a cathodic value
type Pair struct {
	Anodic   Param `koanf:"anodic,omitnested" json:"anodic" yaml:"anodic"`
	Cathodic Param `koanf:"cathodic,omitnested" json:"cathodic" yaml:"cathodic"`
}

// Get returns the value for a polarity
func (p Pair) Get(pol Polarity) Param {
	if pol == Cathodic {
		return p.Cathodic
	}
	return p.Anodic
}

// Parameters describe a pulse or pulse train experiment.
// They are treated as immutable once an experiment begins.
type Parameters struct {
	// NumPulses is the number of cycles
	NumPulses int `koanf:"numPulses" json:"numPulses" yaml:"numPulses"`

	// InterPulseInterval is the rest before and after the pulse in each cycle, s
	InterPulseInterval float64 `koanf:"interPulseInterval" json:"interPulseInterval" yaml:"interPulseInterval"`

	// InterPhaseDelay is the rest between the two phases of a biphasic pulse, s
	InterPhaseDelay float64 `koanf:"interPhaseDelay" json:"interPhaseDelay" yaml:"interPhaseDelay"`

	// PulseWidth is the duration of each phase, s
	PulseWidth Pair `koanf:"pulseWidth" json:"pulseWidth" yaml:"pulseWidth"`

	// CurrentAmplitude is the sourced current of each phase, A
	CurrentAmplitude Pair `koanf:"currentAmplitude" json:"currentAmplitude" yaml:"currentAmplitude"`

	// AnodicFirst orders the phases of a biphasic pulse
	AnodicFirst bool `koanf:"anodicFirst" json:"anodicFirst" yaml:"anodicFirst"`

	// ComplianceVoltage is the voltage limit while sourcing current, V
	ComplianceVoltage float64 `koanf:"complianceVoltage" json:"complianceVoltage" yaml:"complianceVoltage"`
}

// FirstPolarity is the polarity of the first phase of a biphasic pulse
func (p Parameters) FirstPolarity() Polarity {
	if p.AnodicFirst {
		return Anodic
	}
	return Cathodic
}

// CyclePlan holds the resolved parameters of one cycle
type CyclePlan struct {
	// Cycle is the 1-based index of the cycle
	Cycle int

	AnodicWidth       float64
	CathodicWidth     float64
	AnodicAmplitude   float64
	CathodicAmplitude float64
}

// Width returns the pulse width for a polarity
func (c CyclePlan) Width(p Polarity) float64 {
	if p == Cathodic {
		return c.CathodicWidth
	}
	return c.AnodicWidth
}

// Amplitude returns the current amplitude for a polarity
func (c CyclePlan) Amplitude(p Polarity) float64 {
	if p == Cathodic {
		return c.CathodicAmplitude
	}
	return c.AnodicAmplitude
}

// polarities returns the phases used by shape s
func (p Parameters) polarities(s Shape) []Polarity {
	if s.Kind == Monophasic {
		return []Polarity{s.Polarity}
	}
	return []Polarity{Anodic, Cathodic}
}

// Plans validates p for shape s and expands it into one plan per cycle.
// Every error it returns satisfies errors.Is(err, ErrConfiguration).
// Fields of a polarity the shape does not use are ignored.
func (p Parameters) Plans(s Shape) ([]CyclePlan, error) {
	if p.NumPulses < 0 {
		return nil, &ConfigurationError{Field: "numPulses", Reason: fmt.Sprintf("must be non-negative, got %d", p.NumPulses)}
	}
	if !s.Train && p.NumPulses != 1 {
		return nil, &ConfigurationError{Field: "numPulses", Reason: fmt.Sprintf("a single %s needs numPulses = 1, got %d", s, p.NumPulses)}
	}
	if s.Kind != Monophasic && s.Kind != Biphasic {
		return nil, &ConfigurationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %d", int(s.Kind))}
	}
	if err := nonNegative("interPulseInterval", p.InterPulseInterval); err != nil {
		return nil, err
	}
	if err := nonNegative("interPhaseDelay", p.InterPhaseDelay); err != nil {
		return nil, err
	}
	if !finite(p.ComplianceVoltage) || p.ComplianceVoltage <= 0 {
		return nil, &ConfigurationError{Field: "complianceVoltage", Reason: fmt.Sprintf("must be positive, got %g", p.ComplianceVoltage)}
	}

	n := p.NumPulses
	plans := make([]CyclePlan, n)
	for i := range plans {
		plans[i].Cycle = i + 1
	}
	for _, pol := range p.polarities(s) {
		widths, err := expandField("pulseWidth."+pol.String(), p.PulseWidth.Get(pol), n)
		if err != nil {
			return nil, err
		}
		amps, err := expandField("currentAmplitude."+pol.String(), p.CurrentAmplitude.Get(pol), n)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			if err := nonNegative(fmt.Sprintf("pulseWidth.%s[%d]", pol, i), widths[i]); err != nil {
				return nil, err
			}
			if err := CheckAmplitude(pol, amps[i], i+1); err != nil {
				return nil, err
			}
			if pol == Anodic {
				plans[i].AnodicWidth, plans[i].AnodicAmplitude = widths[i], amps[i]
			} else {
				plans[i].CathodicWidth, plans[i].CathodicAmplitude = widths[i], amps[i]
			}
		}
	}
	return plans, nil
}

// Validate checks p for shape s without keeping the expansion
func (p Parameters) Validate(s Shape) error {
	_, err := p.Plans(s)
	return err
}

// InitialLevel is the source level the instrument is configured with before
// output is enabled: the level of the first phase of the first cycle, zero
// when a train opens on its leading rest.  It is zero for an empty train.
func (p Parameters) InitialLevel(s Shape, plans []CyclePlan) float64 {
	if len(plans) == 0 {
		return 0
	}
	phases := p.Phases(plans[0], s)
	if len(phases) == 0 {
		return 0
	}
	return phases[0].Level
}

// NominalDuration is the total planned length of the experiment in seconds
func (p Parameters) NominalDuration(s Shape, plans []CyclePlan) float64 {
	var total float64
	for _, c := range plans {
		phases := p.Phases(c, s)
		if len(phases) > 0 {
			total += phases[len(phases)-1].End
		}
	}
	return total
}

func expandField(field string, p Param, n int) ([]float64, error) {
	vs, err := Expand(p, n)
	if err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) && ce.Field == "" {
			ce.Field = field
		}
		return nil, err
	}
	return vs, nil
}

func nonNegative(field string, x float64) error {
	if !finite(x) || x < 0 {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be finite and non-negative, got %g", x)}
	}
	return nil
}

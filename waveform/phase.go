package waveform

import "fmt"

// PhaseKind names a constant-level segment of a cycle
type PhaseKind int

const (
	// LeadingRest holds zero level before the pulse of a train cycle
	LeadingRest PhaseKind = iota
	// FirstPulse is the only phase of a monophasic pulse, or the first of a biphasic one
	FirstPulse
	// InterPhaseRest holds zero level between the two phases of a biphasic pulse
	InterPhaseRest
	// SecondPulse is the second phase of a biphasic pulse
	SecondPulse
	// TrailingRest holds zero level after the pulse of a train cycle
	TrailingRest
)

func (k PhaseKind) String() string {
	switch k {
	case LeadingRest:
		return "leading rest"
	case FirstPulse:
		return "first phase"
	case InterPhaseRest:
		return "inter-phase rest"
	case SecondPulse:
		return "second phase"
	case TrailingRest:
		return "trailing rest"
	}
	return fmt.Sprintf("PhaseKind(%d)", int(k))
}

// IsRest is true for the zero-level phases
func (k PhaseKind) IsRest() bool {
	return k == LeadingRest || k == InterPhaseRest || k == TrailingRest
}

// Phase is one constant-level segment of a cycle
type Phase struct {
	Kind PhaseKind

	// Polarity is meaningful for pulse phases only
	Polarity Polarity

	// Level is the source level held during the phase
	Level float64

	// Duration is the nominal length of the phase, s
	Duration float64

	// End is the cycle-relative time the phase ends, the sum of its own
	// duration and those of every phase before it in the cycle, s
	End float64
}

// Phases lays out the phases of cycle c for shape s in play order, with
// cumulative end boundaries measured from the cycle's clock reset.
//
// Biphasic train:   leading rest, first, inter-phase rest, second, trailing rest
// Biphasic single:  first, inter-phase rest, second
// Monophasic train: pulse, trailing rest
// Monophasic single: pulse
//
// The inter-phase rest is always present in a biphasic pulse, with zero
// duration if InterPhaseDelay is zero.
func (p Parameters) Phases(c CyclePlan, s Shape) []Phase {
	var (
		out []Phase
		end float64
	)
	add := func(k PhaseKind, pol Polarity, level, dur float64) {
		end += dur
		out = append(out, Phase{Kind: k, Polarity: pol, Level: level, Duration: dur, End: end})
	}
	rest := func(k PhaseKind, dur float64) {
		add(k, Anodic, 0, dur)
	}
	pulse := func(k PhaseKind, pol Polarity) {
		add(k, pol, c.Amplitude(pol), c.Width(pol))
	}

	if s.Kind == Monophasic {
		pulse(FirstPulse, s.Polarity)
		if s.Train {
			rest(TrailingRest, p.InterPulseInterval)
		}
		return out
	}

	first := p.FirstPolarity()
	if s.Train {
		rest(LeadingRest, p.InterPulseInterval)
	}
	pulse(FirstPulse, first)
	rest(InterPhaseRest, p.InterPhaseDelay)
	pulse(SecondPulse, first.Other())
	if s.Train {
		rest(TrailingRest, p.InterPulseInterval)
	}
	return out
}

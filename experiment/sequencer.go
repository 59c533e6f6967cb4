package experiment

import (
	"context"
	"log"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/cicpulse/smu"
	"github.com/nasa-jpl/cicpulse/waveform"
)

// Sequencer plays validated cycle plans on an instrument, sampling as fast as
// the instrument answers (or as the Limiter allows) and recording every
// reading.
//
// Within a phase it samples, records, and continues while the elapsed time is
// before the phase's end boundary, so every phase gets at least one sample.
// The instrument clock is reset at the start of each cycle, and boundaries are
// measured from that reset.
type Sequencer struct {
	Inst   smu.Instrument
	Params waveform.Parameters
	Shape  waveform.Shape

	// Digits is the significant digits of each reading; 0 means smu.DefaultDigits
	Digits int

	// Limiter, if not nil, paces SampleOnce calls
	Limiter *rate.Limiter

	// Logger, if not nil, receives cycle and phase events
	Logger *log.Logger

	// OnSample, if not nil, is called after each sample is recorded
	OnSample func(Sample)
}

func (s *Sequencer) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func (s *Sequencer) digits() int {
	if s.Digits <= 0 {
		return smu.DefaultDigits
	}
	return s.Digits
}

// Play runs every plan in order into c.  The output is expected to be on
// already, and is left as-is; the caller turns it off.
//
// ctx is checked between samples.  The first error from the instrument, the
// collector, or ctx ends playback and is returned.
func (s *Sequencer) Play(ctx context.Context, plans []waveform.CyclePlan, c *Collector) error {
	for _, plan := range plans {
		if err := s.playCycle(ctx, plan, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) playCycle(ctx context.Context, plan waveform.CyclePlan, c *Collector) error {
	phases := s.Params.Phases(plan, s.Shape)
	s.logf("cycle %d: %d phases, %g s", plan.Cycle, len(phases), phases[len(phases)-1].End)
	if err := s.Inst.ResetClock(); err != nil {
		return err
	}
	for _, ph := range phases {
		if err := s.Inst.SetLevel(ph.Level); err != nil {
			return err
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if s.Limiter != nil {
				if err := s.Limiter.Wait(ctx); err != nil {
					return err
				}
			}
			r, err := s.Inst.SampleOnce(s.digits())
			if err != nil {
				return err
			}
			sample := Sample{Time: r.Elapsed, Source: r.Source, Measured: r.Measured, Cycle: plan.Cycle}
			if err := c.Record(sample); err != nil {
				return err
			}
			if s.OnSample != nil {
				s.OnSample(sample)
			}
			if r.Elapsed >= ph.End {
				break
			}
		}
	}
	return nil
}

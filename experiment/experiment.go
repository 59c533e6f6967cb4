// Package experiment runs current pulse experiments on a source-measure unit
// and produces a time-stamped, per-cycle labelled measurement stream.
//
// Run is the entry point.  It validates the waveform before touching any
// hardware, opens the instrument, plays every cycle through a Sequencer into
// a Collector, and repairs the instrument clock resets out of the time
// channel.  On every exit path, including cancellation and I/O failure, the
// output is turned off and the instrument is closed.
package experiment

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/cicpulse/smu"
	"github.com/nasa-jpl/cicpulse/waveform"
)

// Opener connects to an instrument
type Opener func() (smu.Instrument, error)

// Experiment is everything needed to run one waveform
type Experiment struct {
	// Title names the experiment in exported files
	Title string

	Params waveform.Parameters
	Shape  waveform.Shape
	Sense  smu.Sense

	// Digits is the significant digits of each reading; 0 means smu.DefaultDigits
	Digits int

	// MinInterval is the least time between samples; 0 samples as fast as
	// the instrument answers
	MinInterval time.Duration

	// Logger, if not nil, receives progress messages
	Logger *log.Logger

	// OnSample, if not nil, is called after each sample is recorded
	OnSample func(Sample)
}

// Result holds everything one experiment produced.  It is built once Run
// returns and is not modified afterwards.
type Result struct {
	Title  string
	Params waveform.Parameters
	Shape  waveform.Shape
	Plans  []waveform.CyclePlan

	Source  smu.SourceMode
	Measure smu.MeasureMode

	Started  time.Time
	Finished time.Time

	// Raw is the stream as acquired, times restarting every cycle
	Raw []Sample

	// Samples is Raw with repaired, non-decreasing times
	Samples []Sample

	// Jumps is the number of clock resets found while repairing
	Jumps int

	// Complete is false if the run ended early
	Complete bool
}

// Columns are the names of the four channels, for headers
func (r *Result) Columns() [4]string {
	return [4]string{"Time", r.Source.Quantity(), r.Measure.Quantity(), "Cycle Number"}
}

func (e Experiment) logf(format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

// Run performs e on the instrument returned by open.
//
// Configuration errors are returned before open is called.  Once the
// instrument is open, the returned Result is never nil: if the run is
// cancelled or the instrument fails, it holds what was recorded up to that
// point and Complete is false.
func Run(ctx context.Context, open Opener, e Experiment) (res *Result, err error) {
	plans, err := e.Params.Plans(e.Shape)
	if err != nil {
		return nil, err
	}
	inst, err := open()
	if err != nil {
		return nil, err
	}
	res = &Result{
		Title:   e.Title,
		Params:  e.Params,
		Shape:   e.Shape,
		Plans:   plans,
		Source:  smu.SourceCurrent,
		Measure: smu.MeasureVoltage,
		Started: time.Now(),
	}
	c := &Collector{}
	defer func() {
		if oerr := inst.SetOutput(false); oerr != nil && err == nil {
			err = oerr
		}
		if cerr := inst.Close(); cerr != nil && err == nil {
			err = cerr
		}
		c.Finalize()
		res.Finished = time.Now()
		res.Raw = c.Samples()
		rep := RepairTimestamps(c.Times())
		res.Samples = repaired(res.Raw, rep.Times)
		res.Jumps = rep.Jumps
		res.Complete = err == nil
		if rep.Jumps > 0 {
			e.logf("repaired %d instrument clock resets", rep.Jumps)
		}
		if err != nil {
			e.logf("%s stopped after %d samples: %v", e.Shape, len(res.Raw), err)
		} else {
			e.logf("%s finished: %d cycles, %d samples in %s",
				e.Shape, len(plans), len(res.Raw), res.Finished.Sub(res.Started).Round(time.Millisecond))
		}
	}()

	cfg := smu.Config{
		Source:  res.Source,
		Measure: res.Measure,
		Level:   e.Params.InitialLevel(e.Shape, plans),
		Limit:   e.Params.ComplianceVoltage,
		Sense:   e.Sense,
	}
	if err = inst.Configure(cfg); err != nil {
		return res, err
	}
	if err = inst.SetOutput(true); err != nil {
		return res, err
	}
	e.logf("%s: %d cycles, nominally %g s", e.Shape, len(plans), e.Params.NominalDuration(e.Shape, plans))

	seq := Sequencer{
		Inst:     inst,
		Params:   e.Params,
		Shape:    e.Shape,
		Digits:   e.Digits,
		Logger:   e.Logger,
		OnSample: e.OnSample,
	}
	if e.MinInterval > 0 {
		seq.Limiter = rate.NewLimiter(rate.Every(e.MinInterval), 1)
	}
	err = seq.Play(ctx, plans, c)
	return res, err
}

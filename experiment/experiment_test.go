package experiment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/cicpulse/experiment"
	"github.com/nasa-jpl/cicpulse/smu"
	"github.com/nasa-jpl/cicpulse/waveform"
)

var biphasicTrain = waveform.Shape{Kind: waveform.Biphasic, Train: true}

// scenario is two cathodic-first cycles of 32 s each
func scenario() waveform.Parameters {
	return waveform.Parameters{
		NumPulses:          2,
		InterPulseInterval: 2,
		InterPhaseDelay:    10,
		PulseWidth:         waveform.Pair{Anodic: waveform.Scalar(6), Cathodic: waveform.Scalar(12)},
		CurrentAmplitude:   waveform.Pair{Anodic: waveform.Scalar(1e-3), Cathodic: waveform.Scalar(-0.5e-3)},
		AnodicFirst:        false,
		ComplianceVoltage:  5,
	}
}

func mockOpener(m *smu.Mock) experiment.Opener {
	return func() (smu.Instrument, error) { return m, nil }
}

func TestRepairExample(t *testing.T) {
	in := []float64{0, 0.5, 0.9, 0.1, 0.6}
	rep := experiment.RepairTimestamps(in)
	if diff := cmp.Diff([]float64{0, 0.5, 0.9, 1.0, 1.5}, rep.Times); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if rep.Jumps != 1 {
		t.Errorf("expected 1 jump, got %d", rep.Jumps)
	}
	if in[3] != 0.1 {
		t.Error("input was modified")
	}
}

func TestRepairIdentityOnMonotonic(t *testing.T) {
	in := []float64{0, 0, 0.25, 1, 1, 7}
	rep := experiment.RepairTimestamps(in)
	if diff := cmp.Diff(in, rep.Times); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if rep.Jumps != 0 {
		t.Errorf("expected no jumps, got %d", rep.Jumps)
	}
}

func TestRepairIdempotent(t *testing.T) {
	in := []float64{0.1, 0.2, 0.3, 0.05, 0.15, 0.01, 0.02, 0.5}
	once := experiment.RepairTimestamps(in).Times
	twice := experiment.RepairTimestamps(once).Times
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second repair changed the times (-once +twice):\n%s", diff)
	}
	for i := 1; i < len(once); i++ {
		if once[i] < once[i-1] {
			t.Errorf("repaired times decrease at %d: %v", i, once)
		}
	}
}

func TestRepairEmpty(t *testing.T) {
	if rep := experiment.RepairTimestamps(nil); len(rep.Times) != 0 || rep.Jumps != 0 {
		t.Errorf("unexpected repair of nothing %+v", rep)
	}
}

func TestCollectorRefusesAfterFinalize(t *testing.T) {
	var c experiment.Collector
	if err := c.Record(experiment.Sample{Time: 1, Cycle: 1}); err != nil {
		t.Fatal(err)
	}
	c.Finalize()
	if err := c.Record(experiment.Sample{Time: 2, Cycle: 1}); !errors.Is(err, experiment.ErrFinalized) {
		t.Errorf("expected ErrFinalized, got %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 sample, got %d", c.Len())
	}
}

func TestEndToEndScenario(t *testing.T) {
	m := smu.NewMock()
	m.Step = 0.5
	res, err := experiment.Run(context.Background(), mockOpener(m), experiment.Experiment{
		Title:  "scenario",
		Params: scenario(),
		Shape:  biphasicTrain,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Complete {
		t.Error("expected a complete result")
	}
	if len(res.Samples) != m.Samples() {
		t.Errorf("expected one row per sample, got %d rows for %d samples", len(res.Samples), m.Samples())
	}
	if len(res.Samples) != 128 {
		t.Errorf("expected 64 samples per 32 s cycle at 0.5 s, got %d total", len(res.Samples))
	}

	// cycles are 1-based and non-decreasing, 64 samples each
	counts := map[int]int{}
	prev := 1
	for _, s := range res.Samples {
		if s.Cycle < prev {
			t.Fatalf("cycle went backwards from %d to %d", prev, s.Cycle)
		}
		prev = s.Cycle
		counts[s.Cycle]++
	}
	if diff := cmp.Diff(map[int]int{1: 64, 2: 64}, counts); diff != "" {
		t.Errorf("samples per cycle (-want +got):\n%s", diff)
	}

	// configured at zero for the leading rest, then cathodic before anodic in both cycles
	wantLevels := []float64{0, 0, -0.5e-3, 0, 1e-3, 0, 0, -0.5e-3, 0, 1e-3, 0}
	if diff := cmp.Diff(wantLevels, m.Levels); diff != "" {
		t.Errorf("levels (-want +got):\n%s", diff)
	}

	// the second cycle continues the first on the repaired clock
	if res.Jumps != 1 {
		t.Errorf("expected 1 clock reset repaired, got %d", res.Jumps)
	}
	if last := res.Samples[len(res.Samples)-1].Time; last != 64 {
		t.Errorf("expected the repaired clock to end at 64 s, got %v", last)
	}
	if res.Raw[len(res.Raw)-1].Time != 32 {
		t.Errorf("expected the raw clock to end at 32 s, got %v", res.Raw[len(res.Raw)-1].Time)
	}

	// every phase of every cycle is sampled
	bounds := []float64{2, 14, 24, 30, 32}
	for cycle := 1; cycle <= 2; cycle++ {
		seen := make([]int, len(bounds))
		for _, s := range res.Raw {
			if s.Cycle != cycle {
				continue
			}
			for i, b := range bounds {
				if s.Time <= b {
					seen[i]++
					break
				}
			}
		}
		for i, n := range seen {
			if n == 0 {
				t.Errorf("cycle %d phase %d has no samples", cycle, i)
			}
		}
	}

	if m.Output() || !m.Closed() {
		t.Error("expected the output off and the instrument closed")
	}
}

func TestSourceFollowsPhases(t *testing.T) {
	m := smu.NewMock()
	m.Step = 1
	params := scenario()
	params.NumPulses = 1
	res, err := experiment.Run(context.Background(), mockOpener(m), experiment.Experiment{Params: params, Shape: biphasicTrain})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range res.Raw {
		var want float64
		switch {
		case s.Time > 2 && s.Time <= 14:
			want = -0.5e-3
		case s.Time > 24 && s.Time <= 30:
			want = 1e-3
		}
		if s.Source != want {
			t.Errorf("at %v s expected source %v, got %v", s.Time, want, s.Source)
		}
	}
}

func TestZeroInterPhaseDelay(t *testing.T) {
	m := smu.NewMock()
	params := scenario()
	params.InterPhaseDelay = 0
	res, err := experiment.Run(context.Background(), mockOpener(m), experiment.Experiment{Params: params, Shape: biphasicTrain})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Samples) == 0 {
		t.Error("expected samples")
	}
}

func TestSinglePulseVariants(t *testing.T) {
	shapes := []waveform.Shape{
		{Kind: waveform.Biphasic},
		{Kind: waveform.Monophasic, Polarity: waveform.Anodic},
		{Kind: waveform.Monophasic, Polarity: waveform.Cathodic, Train: true},
	}
	for _, shape := range shapes {
		m := smu.NewMock()
		m.Step = 1
		params := scenario()
		params.NumPulses = 1
		res, err := experiment.Run(context.Background(), mockOpener(m), experiment.Experiment{Params: params, Shape: shape})
		if err != nil {
			t.Errorf("%s: %v", shape, err)
			continue
		}
		if first := params.Phases(res.Plans[0], shape)[0].Level; m.Levels[0] != first {
			t.Errorf("%s: configured at %v, want the first phase level %v", shape, m.Levels[0], first)
		}
		want := params.NominalDuration(shape, res.Plans)
		if got := res.Samples[len(res.Samples)-1].Time; got != want {
			t.Errorf("%s: expected to end at %v s, got %v", shape, want, got)
		}
	}
}

func TestConfigurationErrorTouchesNoHardware(t *testing.T) {
	params := scenario()
	params.CurrentAmplitude.Anodic = waveform.Scalar(1.0500001)
	opened := false
	open := func() (smu.Instrument, error) {
		opened = true
		return smu.NewMock(), nil
	}
	res, err := experiment.Run(context.Background(), open, experiment.Experiment{Params: params, Shape: biphasicTrain})
	var re *waveform.RangeError
	if !errors.As(err, &re) {
		t.Errorf("expected a RangeError, got %v", err)
	}
	if opened || res != nil {
		t.Error("expected the instrument never to be opened")
	}
}

func TestAbortTurnsOutputOff(t *testing.T) {
	m := smu.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := 0
	res, err := experiment.Run(ctx, mockOpener(m), experiment.Experiment{
		Params: scenario(),
		Shape:  biphasicTrain,
		OnSample: func(experiment.Sample) {
			n++
			if n == 25 {
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if res == nil || res.Complete || len(res.Raw) != 25 {
		t.Fatalf("expected an incomplete result of 25 samples, got %+v", res)
	}
	if m.Output() || !m.Closed() {
		t.Error("expected the output off and the instrument closed after abort")
	}
	if got := m.Calls[len(m.Calls)-2:]; !cmp.Equal(got, []string{"output off", "close"}) {
		t.Errorf("expected output off then close last, got %v", got)
	}
}

func TestIOErrorTurnsOutputOff(t *testing.T) {
	m := smu.NewMock()
	m.FailAfter = 10
	res, err := experiment.Run(context.Background(), mockOpener(m), experiment.Experiment{Params: scenario(), Shape: biphasicTrain})
	if !errors.Is(err, smu.ErrInstrumentIO) {
		t.Errorf("expected an instrument I/O error, got %v", err)
	}
	if len(res.Raw) != 10 {
		t.Errorf("expected the 10 good samples to be kept, got %d", len(res.Raw))
	}
	if m.Output() || !m.Closed() {
		t.Error("expected the output off and the instrument closed after an I/O error")
	}
}

func TestStateChangeErrorTurnsOutputOff(t *testing.T) {
	cases := []struct {
		call  string
		after int
		raw   int
	}{
		// leading rest, cathodic, inter-phase rest, then anodic fails
		{"level", 3, 4 + 24 + 20},
		// the second cycle never starts
		{"reset clock", 1, 64},
	}
	for _, tc := range cases {
		m := smu.NewMock()
		m.Step = 0.5
		m.FailOn, m.FailOnAfter = tc.call, tc.after
		res, err := experiment.Run(context.Background(), mockOpener(m), experiment.Experiment{Params: scenario(), Shape: biphasicTrain})
		if !errors.Is(err, smu.ErrInstrumentIO) {
			t.Errorf("%s: expected an instrument I/O error, got %v", tc.call, err)
		}
		if res == nil || res.Complete {
			t.Fatalf("%s: expected an incomplete result, got %+v", tc.call, res)
		}
		if len(res.Raw) != tc.raw {
			t.Errorf("%s: expected %d samples kept, got %d", tc.call, tc.raw, len(res.Raw))
		}
		if m.Output() || !m.Closed() {
			t.Errorf("%s: expected the output off and the instrument closed", tc.call)
		}
		if got := m.Calls[len(m.Calls)-2:]; !cmp.Equal(got, []string{"output off", "close"}) {
			t.Errorf("%s: expected output off then close last, got %v", tc.call, got)
		}
	}
}

func TestMinIntervalPacesSamples(t *testing.T) {
	m := smu.NewMock()
	m.Step = 1
	params := scenario()
	params.NumPulses = 1
	start := time.Now()
	res, err := experiment.Run(context.Background(), mockOpener(m), experiment.Experiment{
		Params:      params,
		Shape:       waveform.Shape{Kind: waveform.Monophasic, Polarity: waveform.Anodic},
		MinInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	// 6 samples, the first is free
	if len(res.Raw) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(res.Raw))
	}
	if el := time.Since(start); el < 25*time.Millisecond {
		t.Errorf("expected pacing to take at least 25 ms, took %s", el)
	}
}

func TestMeasureImpedance(t *testing.T) {
	m := smu.NewMock()
	m.Ohms = 4700
	z, err := experiment.MeasureImpedance(mockOpener(m), experiment.Impedance{Current: 1e-4, Limit: 10, Sense: smu.FourWire})
	if err != nil {
		t.Fatal(err)
	}
	if z != 4700 {
		t.Errorf("expected 4700 Ohm, got %v", z)
	}
	if m.Output() || !m.Closed() {
		t.Error("expected the output off and the instrument closed")
	}
	if _, err := experiment.MeasureImpedance(mockOpener(smu.NewMock()), experiment.Impedance{Current: 2, Limit: 1}); !errors.Is(err, waveform.ErrConfiguration) {
		t.Errorf("expected 2 A to be rejected, got %v", err)
	}
}

func BenchmarkRepairTimestamps(b *testing.B) {
	ts := make([]float64, 10000)
	for i := range ts {
		ts[i] = float64(i%100) * 0.01
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		experiment.RepairTimestamps(ts)
	}
}

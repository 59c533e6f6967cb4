package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/cicpulse/waveform"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Errorf("expected the defaults to validate, got %v", err)
	}
}

func TestReadDefaultsRoundTrip(t *testing.T) {
	c, err := Read("", nil)
	if err != nil {
		t.Fatal(err)
	}
	d := Defaults()
	if c.Instrument != d.Instrument || c.Export != d.Export || c.Server != d.Server {
		t.Errorf("decoded defaults differ: %+v", c)
	}
	if got := c.Waveform.Parameters.PulseWidth.Anodic.Values(); !cmp.Equal(got, []float64{180}) {
		t.Errorf("expected scalar anodic width 180, got %v", got)
	}
}

const fileConf = `
Instrument:
  Transport: mock
  Sense: "4"
Waveform:
  Kind: monophasic
  Polarity: cathodic
  Parameters:
    numPulses: 2
    pulseWidth:
      cathodic: [0.5, 1.5]
    currentAmplitude:
      cathodic: -0.002
Sampling:
  MinInterval: 0.01
`

func writeConf(t *testing.T, s string) string {
	p := filepath.Join(t.TempDir(), "cicpulse.yml")
	if err := os.WriteFile(p, []byte(s), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFileOverridesDefaults(t *testing.T) {
	c, err := Read(writeConf(t, fileConf), nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Instrument.Transport != "mock" || c.Instrument.Addr != Defaults().Instrument.Addr {
		t.Errorf("expected transport from file and addr from defaults, got %+v", c.Instrument)
	}
	p := c.Waveform.Parameters
	if !p.PulseWidth.Cathodic.IsSequence() || !cmp.Equal(p.PulseWidth.Cathodic.Values(), []float64{0.5, 1.5}) {
		t.Errorf("expected a cathodic width sequence, got %v", p.PulseWidth.Cathodic)
	}
	if p.CurrentAmplitude.Cathodic.Values()[0] != -0.002 {
		t.Errorf("expected cathodic amplitude -0.002, got %v", p.CurrentAmplitude.Cathodic)
	}
	shape, err := c.Waveform.Shape()
	if err != nil {
		t.Fatal(err)
	}
	want := waveform.Shape{Kind: waveform.Monophasic, Polarity: waveform.Cathodic, Train: true}
	if shape != want {
		t.Errorf("expected %s, got %s", want, shape)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("expected file config to validate, got %v", err)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("CICPULSE_INSTRUMENT_ADDR", "10.0.0.7")
	t.Setenv("CICPULSE_WAVEFORM_PARAMETERS_NUMPULSES", "4")
	t.Setenv("CICPULSE_WAVEFORM_PARAMETERS_PULSEWIDTH_ANODIC", "[1, 2, 3, 4]")
	t.Setenv("CICPULSE_NOT_A_KEY", "x")
	c, err := Read(writeConf(t, fileConf), nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Instrument.Addr != "10.0.0.7" {
		t.Errorf("expected addr from env, got %q", c.Instrument.Addr)
	}
	if c.Waveform.Parameters.NumPulses != 4 {
		t.Errorf("expected 4 pulses from env, got %d", c.Waveform.Parameters.NumPulses)
	}
	if got := c.Waveform.Parameters.PulseWidth.Anodic.Values(); !cmp.Equal(got, []float64{1, 2, 3, 4}) {
		t.Errorf("expected anodic widths from env, got %v", got)
	}
}

func TestOverridesWin(t *testing.T) {
	t.Setenv("CICPULSE_INSTRUMENT_TRANSPORT", "usb")
	c, err := Read("", map[string]interface{}{
		"Instrument.Transport":                        "mock",
		"Waveform.Parameters.currentAmplitude.anodic": 1e-3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Instrument.Transport != "mock" {
		t.Errorf("expected override transport, got %q", c.Instrument.Transport)
	}
	if c.Waveform.Parameters.CurrentAmplitude.Anodic.Values()[0] != 1e-3 {
		t.Errorf("expected override amplitude, got %v", c.Waveform.Parameters.CurrentAmplitude.Anodic)
	}
}

func TestMissingFileIsFine(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.yml"), nil); err != nil {
		t.Errorf("expected a missing file to be ignored, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"transport": func(c *Config) { c.Instrument.Transport = "carrier pigeon" },
		"sense":     func(c *Config) { c.Instrument.Sense = "3" },
		"timeout":   func(c *Config) { c.Instrument.Timeout = 0 },
		"kind":      func(c *Config) { c.Waveform.Kind = "triphasic" },
		"amplitude": func(c *Config) { c.Waveform.Parameters.CurrentAmplitude.Anodic = waveform.Scalar(2) },
	}
	for name, mutate := range cases {
		c := Defaults()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	c := Defaults()
	c.Waveform.Parameters.NumPulses = -1
	if err := c.Validate(); !errors.Is(err, waveform.ErrConfiguration) {
		t.Errorf("expected a waveform configuration error, got %v", err)
	}
}

func TestWriteIsReadable(t *testing.T) {
	var buf bytes.Buffer
	d := Defaults()
	d.Waveform.Parameters.PulseWidth.Cathodic = waveform.Sequence(1, 2, 3)
	if err := Write(&buf, d); err != nil {
		t.Fatal(err)
	}
	c, err := Read(writeConf(t, buf.String()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Waveform.Parameters.PulseWidth.Cathodic.Values(); !cmp.Equal(got, []float64{1, 2, 3}) {
		t.Errorf("expected written sequence to read back, got %v", got)
	}
	if c.Instrument != d.Instrument {
		t.Errorf("instrument section changed: %+v", c.Instrument)
	}
}

func TestExperimentFromConfig(t *testing.T) {
	c := Defaults()
	c.Instrument.Sense = "4"
	c.Sampling.MinInterval = 0.25
	e, err := c.Experiment()
	if err != nil {
		t.Fatal(err)
	}
	if e.Title != c.Waveform.Title || e.MinInterval.Seconds() != 0.25 || e.Sense.String() == "" {
		t.Errorf("unexpected experiment %+v", e)
	}
	if e.Shape.Kind != waveform.Biphasic || !e.Shape.Train {
		t.Errorf("expected a biphasic train, got %s", e.Shape)
	}
	if o := c.ExportOptions(); o.Root != "data" || !o.CSV || o.FITS {
		t.Errorf("unexpected export options %+v", o)
	}
}

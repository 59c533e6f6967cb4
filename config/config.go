// Package config loads cicpulse configuration.
//
// Values are layered, later sources overriding earlier ones:
//
//	1. built-in defaults (Defaults)
//	2. a yaml file
//	3. CICPULSE_* environment variables, e.g. CICPULSE_INSTRUMENT_ADDR or
//	   CICPULSE_WAVEFORM_PARAMETERS_PULSEWIDTH_ANODIC="[1e-3, 2e-3]"
//	4. explicit overrides from the command line
//
// Waveform fields that may vary per cycle accept a number or a list in any
// of these sources.
package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/cicpulse/experiment"
	"github.com/nasa-jpl/cicpulse/export"
	"github.com/nasa-jpl/cicpulse/smu"
	"github.com/nasa-jpl/cicpulse/util"
	"github.com/nasa-jpl/cicpulse/waveform"
)

// EnvPrefix starts every environment variable read by Load
const EnvPrefix = "CICPULSE_"

// DefaultFileName is the config file used when none is named
const DefaultFileName = "cicpulse.yml"

// Instrument says how to reach the SMU
type Instrument struct {
	// Transport is one of tcp, usb, gpib, mock
	Transport string `koanf:"Transport" yaml:"Transport"`

	// Addr is host[:port] for tcp and the serial port of the Prologix
	// controller for gpib; unused for usb and mock
	Addr string `koanf:"Addr" yaml:"Addr"`

	// GPIBAddr is the instrument's GPIB address
	GPIBAddr int `koanf:"GPIBAddr" yaml:"GPIBAddr"`

	// Timeout is the per-call I/O deadline, s
	Timeout float64 `koanf:"Timeout" yaml:"Timeout"`

	// Digits is the significant digits readings are rounded to
	Digits int `koanf:"Digits" yaml:"Digits"`

	// Sense is 2 or 4 (wire)
	Sense string `koanf:"Sense" yaml:"Sense"`
}

// Waveform is the experiment to run
type Waveform struct {
	Title string `koanf:"Title" yaml:"Title"`

	// Kind is monophasic or biphasic
	Kind string `koanf:"Kind" yaml:"Kind"`

	// Polarity is the phase of a monophasic pulse, anodic or cathodic
	Polarity string `koanf:"Polarity" yaml:"Polarity"`

	// Train repeats the pulse NumPulses times
	Train bool `koanf:"Train" yaml:"Train"`

	Parameters waveform.Parameters `koanf:"Parameters" yaml:"Parameters"`
}

// Sampling paces acquisition
type Sampling struct {
	// MinInterval is the least time between samples, s; 0 is unthrottled
	MinInterval float64 `koanf:"MinInterval" yaml:"MinInterval"`
}

// Export says where and what to write
type Export struct {
	Root string `koanf:"Root" yaml:"Root"`
	CSV  bool   `koanf:"CSV" yaml:"CSV"`
	FITS bool   `koanf:"FITS" yaml:"FITS"`
	Plot bool   `koanf:"Plot" yaml:"Plot"`
}

// Server configures the HTTP interface
type Server struct {
	Addr string `koanf:"Addr" yaml:"Addr"`
}

// Config is the whole configuration
type Config struct {
	Instrument Instrument `koanf:"Instrument" yaml:"Instrument"`
	Waveform   Waveform   `koanf:"Waveform" yaml:"Waveform"`
	Sampling   Sampling   `koanf:"Sampling" yaml:"Sampling"`
	Export     Export     `koanf:"Export" yaml:"Export"`
	Server     Server     `koanf:"Server" yaml:"Server"`
}

// Defaults returns the built-in configuration: a 2-wire Keithley on the LAN
// running three 180 s, 4 mA biphasic pulses
func Defaults() Config {
	return Config{
		Instrument: Instrument{
			Transport: "tcp",
			Addr:      "192.168.1.100:5025",
			GPIBAddr:  18,
			Timeout:   5,
			Digits:    smu.DefaultDigits,
			Sense:     "2",
		},
		Waveform: Waveform{
			Title: "biphasic_pulse_train",
			Kind:  "biphasic",
			Train: true,
			Parameters: waveform.Parameters{
				NumPulses:          3,
				InterPulseInterval: 2,
				InterPhaseDelay:    0,
				PulseWidth:         waveform.Pair{Anodic: waveform.Scalar(180), Cathodic: waveform.Scalar(180)},
				CurrentAmplitude:   waveform.Pair{Anodic: waveform.Scalar(4e-3), Cathodic: waveform.Scalar(-4e-3)},
				AnodicFirst:        true,
				ComplianceVoltage:  5,
			},
		},
		Export: Export{Root: "data", CSV: true, Plot: true},
		Server: Server{Addr: ":8000"},
	}
}

var paramType = reflect.TypeOf(waveform.Param{})

// paramHook decodes numbers, lists, and strings into waveform.Param
func paramHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != paramType {
		return data, nil
	}
	return waveform.ParseParam(data)
}

// envKeys maps the lower-cased form of every known key to the key itself,
// so CICPULSE_INSTRUMENT_ADDR can find Instrument.Addr
func envKeys(k *koanf.Koanf) func(string) string {
	known := map[string]string{}
	for _, key := range k.Keys() {
		known[strings.ToLower(key)] = key
	}
	return func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		s = strings.ReplaceAll(s, "_", ".")
		if key, ok := known[s]; ok {
			return key
		}
		return ""
	}
}

// Load builds a koanf instance from the defaults, the file at path (a
// missing file is not an error), the environment, and overrides, whose keys
// are full paths such as "Waveform.Parameters.numPulses"
func Load(path string, overrides map[string]interface{}) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "config: loading defaults")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(errors.Cause(err)) && !strings.Contains(err.Error(), "no such") {
				return nil, errors.Wrapf(err, "config: loading %s", path)
			}
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKeys(k)), nil); err != nil {
		return nil, errors.Wrap(err, "config: loading environment")
	}
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, "config: applying overrides")
		}
	}
	return k, nil
}

// Unmarshal decodes k into a Config
func Unmarshal(k *koanf.Koanf) (Config, error) {
	var c Config
	err := k.UnmarshalWithConf("", &c, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.ComposeDecodeHookFunc(paramHook),
			Result:           &c,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return c, errors.Wrap(err, "config: decoding")
	}
	return c, nil
}

// Read is Load followed by Unmarshal
func Read(path string, overrides map[string]interface{}) (Config, error) {
	k, err := Load(path, overrides)
	if err != nil {
		return Config{}, err
	}
	return Unmarshal(k)
}

// Write encodes c as yaml
func Write(w io.Writer, c Config) error {
	return yml.NewEncoder(w).Encode(c)
}

// Shape returns the experiment variant the waveform section selects
func (w Waveform) Shape() (waveform.Shape, error) {
	kind, err := waveform.ParseKind(w.Kind)
	if err != nil {
		return waveform.Shape{}, err
	}
	pol, err := waveform.ParsePolarity(w.Polarity)
	if err != nil {
		return waveform.Shape{}, err
	}
	return waveform.Shape{Kind: kind, Polarity: pol, Train: w.Train}, nil
}

// SenseMode parses Sense
func (i Instrument) SenseMode() (smu.Sense, error) {
	return smu.ParseSense(i.Sense)
}

// IOTimeout is Timeout as a duration
func (i Instrument) IOTimeout() time.Duration {
	return util.SecsToDuration(i.Timeout)
}

// Interval is MinInterval as a duration
func (s Sampling) Interval() time.Duration {
	return util.SecsToDuration(s.MinInterval)
}

// Validate checks every enumerated field and the waveform parameters
func (c Config) Validate() error {
	switch strings.ToLower(c.Instrument.Transport) {
	case "tcp", "usb", "gpib", "mock":
	default:
		return fmt.Errorf("config: unknown transport %q, want tcp, usb, gpib, or mock", c.Instrument.Transport)
	}
	if _, err := c.Instrument.SenseMode(); err != nil {
		return err
	}
	if c.Instrument.Timeout <= 0 {
		return fmt.Errorf("config: Instrument.Timeout must be positive, got %g", c.Instrument.Timeout)
	}
	if c.Sampling.MinInterval < 0 {
		return fmt.Errorf("config: Sampling.MinInterval must be non-negative, got %g", c.Sampling.MinInterval)
	}
	shape, err := c.Waveform.Shape()
	if err != nil {
		return err
	}
	return c.Waveform.Parameters.Validate(shape)
}

// Experiment builds the experiment the configuration describes
func (c Config) Experiment() (experiment.Experiment, error) {
	shape, err := c.Waveform.Shape()
	if err != nil {
		return experiment.Experiment{}, err
	}
	sense, err := c.Instrument.SenseMode()
	if err != nil {
		return experiment.Experiment{}, err
	}
	return experiment.Experiment{
		Title:       c.Waveform.Title,
		Params:      c.Waveform.Parameters,
		Shape:       shape,
		Sense:       sense,
		Digits:      c.Instrument.Digits,
		MinInterval: c.Sampling.Interval(),
	}, nil
}

// ExportOptions says what export.Save should write
func (c Config) ExportOptions() export.Options {
	return export.Options{Root: c.Export.Root, CSV: c.Export.CSV, FITS: c.Export.FITS, Plot: c.Export.Plot}
}

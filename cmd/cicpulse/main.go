// Command cicpulse runs current pulse experiments on a Keithley 2450
// source-measure unit, saves the measurements, and optionally serves the
// instrument and the experiment runner over HTTP.
package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nasa-jpl/cicpulse/config"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// global flags
	configFile string
	useMock    bool
	verbose    bool
	sets       []string
)

var rootCmd = &cobra.Command{
	Use:   "cicpulse",
	Short: "current pulse experiments on a Keithley 2450 SMU",
	Long: `cicpulse sources monophasic or biphasic current pulses, or trains of them,
from a Keithley 2450 source-measure unit while sampling the voltage the
electrode develops.  Every sample is labelled with its cycle and written to a
dated session directory as csv, with a figure and a json manifest.

Configuration is read from cicpulse.yml (see mkconf), then CICPULSE_*
environment variables, then --set flags, e.g.

  cicpulse run --set Waveform.Parameters.numPulses=5 \
    --set Waveform.Parameters.pulseWidth.anodic="[1,2,3,4,5]"

Use --mock to run against an in-memory instrument.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", config.DefaultFileName, "configuration file")
	pf.BoolVar(&useMock, "mock", false, "use an in-memory instrument instead of hardware")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log every cycle")
	pf.StringArrayVar(&sets, "set", nil, "override a configuration key, key=value")
}

// overrides turns --set and --mock into koanf keys
func overrides() (map[string]interface{}, error) {
	m := map[string]interface{}{}
	for _, s := range sets {
		kv := strings.SplitN(s, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("--set %q is not key=value", s)
		}
		m[kv[0]] = kv[1]
	}
	if useMock {
		m["Instrument.Transport"] = "mock"
	}
	return m, nil
}

// loadConfig reads the effective configuration
func loadConfig() (config.Config, error) {
	ov, err := overrides()
	if err != nil {
		return config.Config{}, err
	}
	return config.Read(configFile, ov)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

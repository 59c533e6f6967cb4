package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nasa-jpl/cicpulse/experiment"
	"github.com/nasa-jpl/cicpulse/smu"
)

var (
	zCurrent  float64
	zLimit    float64
	zFourWire bool
)

var impedanceCmd = &cobra.Command{
	Use:   "impedance",
	Short: "take one resistance reading",
	Long: `impedance sources a test current, measures the resistance it sees, and
turns the output off again.  The sense mode comes from the configuration
unless --4wire is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		open, err := opener(c.Instrument)
		if err != nil {
			return err
		}
		sense, err := c.Instrument.SenseMode()
		if err != nil {
			return err
		}
		if zFourWire {
			sense = smu.FourWire
		}
		ohms, err := experiment.MeasureImpedance(open, experiment.Impedance{
			Current: zCurrent,
			Limit:   zLimit,
			Sense:   sense,
			Digits:  c.Instrument.Digits,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%g Ohm (%s, %g A)\n", ohms, sense, zCurrent)
		return nil
	},
}

func init() {
	f := impedanceCmd.Flags()
	f.Float64Var(&zCurrent, "current", 1e-3, "test current, A")
	f.Float64Var(&zLimit, "limit", 10, "voltage limit, V")
	f.BoolVar(&zFourWire, "4wire", false, "use 4-wire (Kelvin) sense")
	rootCmd.AddCommand(impedanceCmd)
}

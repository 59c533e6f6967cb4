package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/cicpulse/config"
	"github.com/nasa-jpl/cicpulse/experiment"
	"github.com/nasa-jpl/cicpulse/export"
)

var noSpin bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the configured experiment and save the result",
	Long: `run validates the waveform, configures the instrument, plays every cycle,
and saves what was recorded.  Ctrl-C stops the experiment between samples;
the output is turned off and the partial result is still saved.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runExperiment(ctx, c)
	},
}

func init() {
	runCmd.Flags().BoolVar(&noSpin, "no-spinner", false, "do not show progress")
	rootCmd.AddCommand(runCmd)
}

func newSpinner() (*yacspin.Spinner, error) {
	return yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " cicpulse",
		SuffixAutoColon:   true,
		Message:           "configuring",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
}

// runExperiment runs the experiment c describes and saves the result,
// partial or not
func runExperiment(ctx context.Context, c config.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	open, err := opener(c.Instrument)
	if err != nil {
		return err
	}
	e, err := c.Experiment()
	if err != nil {
		return err
	}
	if verbose {
		e.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	var spin *yacspin.Spinner
	if !noSpin {
		spin, err = newSpinner()
		if err != nil {
			return err
		}
		if err = spin.Start(); err != nil {
			return err
		}
		n := 0
		e.OnSample = func(s experiment.Sample) {
			n++
			if n%50 == 0 {
				spin.Message(fmt.Sprintf("cycle %d/%d, %d samples", s.Cycle, e.Params.NumPulses, n))
			}
		}
	}

	res, err := experiment.Run(ctx, open, e)
	if spin != nil {
		if err != nil {
			spin.StopFailMessage(err.Error())
			spin.StopFail()
		} else {
			spin.StopMessage(fmt.Sprintf("%d samples", len(res.Samples)))
			spin.Stop()
		}
	}
	if res == nil {
		return err
	}
	opts := c.ExportOptions()
	opts.Logger = e.Logger
	paths, serr := export.Save(res, opts)
	if serr != nil {
		if err == nil {
			return serr
		}
		log.Println(serr)
	} else {
		log.Printf("saved %s", paths.Manifest)
	}
	return err
}

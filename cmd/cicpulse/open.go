package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/nasa-jpl/cicpulse/config"
	"github.com/nasa-jpl/cicpulse/experiment"
	"github.com/nasa-jpl/cicpulse/keithley"
	"github.com/nasa-jpl/cicpulse/prologix"
	"github.com/nasa-jpl/cicpulse/smu"
	"github.com/nasa-jpl/cicpulse/usbtmc"
)

// opener returns a function that connects to the instrument c describes.
// Connections are made lazily, on the first command.
func opener(c config.Instrument) (experiment.Opener, error) {
	timeout := c.IOTimeout()
	logged := func(s *keithley.SMU) *keithley.SMU {
		if verbose {
			s.Logger = log.New(os.Stderr, "", log.LstdFlags)
		}
		return s
	}
	switch strings.ToLower(c.Transport) {
	case "tcp":
		return func() (smu.Instrument, error) {
			return logged(keithley.NewTCP(c.Addr, timeout)), nil
		}, nil
	case "usb":
		maker := usbtmc.Maker(usbtmc.KeithleyVID, usbtmc.Keithley2450PID)
		return func() (smu.Instrument, error) {
			return logged(keithley.NewFromMaker(maker, timeout)), nil
		}, nil
	case "gpib":
		maker := prologix.Maker(c.Addr, c.GPIBAddr, timeout)
		return func() (smu.Instrument, error) {
			return logged(keithley.NewFromMaker(maker, timeout)), nil
		}, nil
	case "mock":
		return func() (smu.Instrument, error) {
			return smu.NewMock(), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown transport %q, want tcp, usb, gpib, or mock", c.Transport)
}

// Package keithley drives the Keithley 2450 SourceMeter with its TSP command
// language.  SMU satisfies smu.Instrument, smu.Identifier, and smu.Rawer.
package keithley

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/cicpulse/comm"
	"github.com/nasa-jpl/cicpulse/mathx"
	"github.com/nasa-jpl/cicpulse/scpi"
	"github.com/nasa-jpl/cicpulse/smu"
)

// TSPPort is the raw socket port of the 2450 LAN interface
const TSPPort = 5025

// idleTimeout is how long an unused connection is kept open
const idleTimeout = 10 * time.Second

var (
	sourceFuncs = map[smu.SourceMode]string{
		smu.SourceCurrent: "smu.FUNC_DC_CURRENT",
		smu.SourceVoltage: "smu.FUNC_DC_VOLTAGE",
	}
	measureFuncs = map[smu.MeasureMode]string{
		smu.MeasureVoltage:    "smu.FUNC_DC_VOLTAGE",
		smu.MeasureCurrent:    "smu.FUNC_DC_CURRENT",
		smu.MeasureResistance: "smu.FUNC_RESISTANCE",
	}
	senses = map[smu.Sense]string{
		smu.TwoWire:  "smu.SENSE_2WIRE",
		smu.FourWire: "smu.SENSE_4WIRE",
	}
)

const (
	sampleCmd = "smu.measure.read(defbuffer1) " +
		"print(defbuffer1.readings[defbuffer1.n], defbuffer1.sourcevalues[defbuffer1.n], timer.gettime())"
)

// SMU is a Keithley 2450 source-measure unit
type SMU struct {
	scpi.SCPI

	// Logger, if not nil, is told which instrument was configured and how
	Logger *log.Logger
}

// New returns an SMU that talks over connections from pool
func New(pool *comm.Pool, timeout time.Duration) *SMU {
	return &SMU{SCPI: scpi.SCPI{Pool: pool, Timeout: timeout}}
}

// NewTCP returns an SMU on the LAN.  addr may omit the port, in which case
// the TSP socket port is used.
func NewTCP(addr string, timeout time.Duration) *SMU {
	maker := comm.BackingOffTCPConnMaker(withPort(addr), timeout)
	return New(comm.NewPool(1, idleTimeout, maker), timeout)
}

// NewFromMaker returns an SMU over any link, e.g. usbtmc.Maker or prologix.Maker
func NewFromMaker(maker comm.CreationFunc, timeout time.Duration) *SMU {
	return New(comm.NewPool(1, idleTimeout, maker), timeout)
}

func withPort(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		switch addr[i] {
		case ':':
			return addr
		case ']', '.':
			return addr + ":" + strconv.Itoa(TSPPort)
		}
	}
	return addr + ":" + strconv.Itoa(TSPPort)
}

func ioErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &smu.IOError{Op: op, Err: errors.Wrap(err, "keithley 2450")}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Identify returns the response to *IDN?
func (s *SMU) Identify() (string, error) {
	id, err := s.ReadString("*IDN?")
	return id, ioErr("identify", err)
}

// configCommands is the TSP script applied by Configure
func configCommands(c smu.Config) ([]string, error) {
	src, ok := sourceFuncs[c.Source]
	if !ok {
		return nil, fmt.Errorf("keithley: unknown source mode %d", int(c.Source))
	}
	meas, ok := measureFuncs[c.Measure]
	if !ok {
		return nil, fmt.Errorf("keithley: unknown measure mode %d", int(c.Measure))
	}
	sense, ok := senses[c.Sense]
	if !ok {
		return nil, fmt.Errorf("keithley: unknown sense mode %d", int(c.Sense))
	}
	limit := "smu.source.vlimit.level = "
	if c.Source == smu.SourceVoltage {
		limit = "smu.source.ilimit.level = "
	}
	return []string{
		"reset()",
		"defbuffer1.clear()",
		"smu.measure.func = " + meas,
		"smu.measure.autorange = smu.ON",
		"smu.measure.sense = " + sense,
		"smu.measure.terminals = smu.TERMINALS_FRONT",
		"smu.source.readback = smu.ON",
		"smu.source.func = " + src,
		"smu.source.offmode = smu.OFFMODE_HIGHZ",
		"smu.source.level = " + num(c.Level),
		limit + num(c.Limit),
		"timer.cleartime()",
	}, nil
}

func (s *SMU) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// Configure resets the SMU and applies c with the output off.  The
// instrument identity is logged.
func (s *SMU) Configure(c smu.Config) error {
	cmds, err := configCommands(c)
	if err != nil {
		return err
	}
	id, err := s.Identify()
	if err != nil {
		return err
	}
	s.logf("keithley: configuring %s: source %s, measure %s, %s sense, level %g %s, limit %g",
		id, c.Source, c.Measure, c.Sense, c.Level, c.Source.Unit(), c.Limit)
	// one line per command
	for _, cmd := range cmds {
		if err := s.Write(cmd); err != nil {
			return ioErr("configure: "+cmd, err)
		}
	}
	return nil
}

// SetLevel sets the source level
func (s *SMU) SetLevel(level float64) error {
	return ioErr("set level", s.Write("smu.source.level = "+num(level)))
}

// SetOutput turns the output on or off
func (s *SMU) SetOutput(on bool) error {
	state := "smu.OFF"
	if on {
		state = "smu.ON"
	}
	return ioErr("set output", s.Write("smu.source.output = "+state))
}

// ResetClock zeroes the instrument timer
func (s *SMU) ResetClock() error {
	return ioErr("reset clock", s.Write("timer.cleartime()"))
}

// parseSample decodes the reply to sampleCmd: reading, source, time
func parseSample(resp string, digits int) (smu.Reading, error) {
	vs, err := scpi.ParseFloats(resp)
	if err != nil {
		return smu.Reading{}, err
	}
	if len(vs) != 3 {
		return smu.Reading{}, fmt.Errorf("expected 3 values in %q, got %d", resp, len(vs))
	}
	return smu.Reading{
		Elapsed:  mathx.RoundSig(vs[2], digits),
		Source:   mathx.RoundSig(vs[1], digits),
		Measured: mathx.RoundSig(vs[0], digits),
	}, nil
}

// SampleOnce triggers a measurement into defbuffer1 and returns the newest
// reading with its source readback and the timer value
func (s *SMU) SampleOnce(digits int) (smu.Reading, error) {
	resp, err := s.ReadString(sampleCmd)
	if err != nil {
		return smu.Reading{}, ioErr("sample", err)
	}
	r, err := parseSample(resp, digits)
	return r, ioErr("sample", err)
}

// Close clears the reading buffer and closes the connection pool
func (s *SMU) Close() error {
	err := s.Write("defbuffer1.clear()")
	cerr := s.Pool.Close()
	if err != nil {
		return ioErr("close", err)
	}
	return ioErr("close", cerr)
}

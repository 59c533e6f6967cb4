package keithley

import (
	"bufio"
	"bytes"
	"errors"
	"log"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/cicpulse/smu"
)

func TestConfigCommandsCurrentSource(t *testing.T) {
	cmds, err := configCommands(smu.Config{
		Source: smu.SourceCurrent, Measure: smu.MeasureVoltage,
		Level: -5e-4, Limit: 5, Sense: smu.FourWire,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"reset()",
		"defbuffer1.clear()",
		"smu.measure.func = smu.FUNC_DC_VOLTAGE",
		"smu.measure.autorange = smu.ON",
		"smu.measure.sense = smu.SENSE_4WIRE",
		"smu.measure.terminals = smu.TERMINALS_FRONT",
		"smu.source.readback = smu.ON",
		"smu.source.func = smu.FUNC_DC_CURRENT",
		"smu.source.offmode = smu.OFFMODE_HIGHZ",
		"smu.source.level = -0.0005",
		"smu.source.vlimit.level = 5",
		"timer.cleartime()",
	}
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestConfigCommandsVoltageSourceLimitsCurrent(t *testing.T) {
	cmds, err := configCommands(smu.Config{Source: smu.SourceVoltage, Measure: smu.MeasureCurrent, Limit: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if cmds[10] != "smu.source.ilimit.level = 0.1" {
		t.Errorf("expected a current limit, got %q", cmds[10])
	}
}

func TestParseSampleOrder(t *testing.T) {
	r, err := parseSample("1.2345678912\t1.0000000001e-03\t2.5", 9)
	if err != nil {
		t.Fatal(err)
	}
	want := smu.Reading{Elapsed: 2.5, Source: 1e-3, Measured: 1.23456789}
	if r != want {
		t.Errorf("expected %+v, got %+v", want, r)
	}
	if _, err := parseSample("1\t2", 9); err == nil {
		t.Error("expected a short reply to fail")
	}
}

func TestWithPort(t *testing.T) {
	for in, want := range map[string]string{
		"192.168.1.5":      "192.168.1.5:5025",
		"192.168.1.5:5030": "192.168.1.5:5030",
		"smu":              "smu:5025",
		"[fe80::1]":        "[fe80::1]:5025",
	} {
		if got := withPort(in); got != want {
			t.Errorf("%s: expected %s, got %s", in, want, got)
		}
	}
}

// fake2450 answers *IDN? and the sample script, and records all lines
type fake2450 struct {
	mu    sync.Mutex
	lines []string
}

func (f *fake2450) serve(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				br := bufio.NewReader(c)
				for {
					line, err := br.ReadString('\n')
					if err != nil {
						return
					}
					line = strings.TrimSpace(line)
					f.mu.Lock()
					f.lines = append(f.lines, line)
					f.mu.Unlock()
					switch {
					case line == "*IDN?":
						c.Write([]byte("KEITHLEY INSTRUMENTS,MODEL 2450,04096218,1.7.12b\n"))
					case strings.Contains(line, "print("):
						c.Write([]byte("2.000000000e+00\t1.000000000e-03\t1.250000000e-01\n"))
					}
				}
			}(c)
		}
	}()
	return l.Addr().String()
}

func TestSMUOverTCP(t *testing.T) {
	f := &fake2450{}
	s := NewTCP(f.serve(t), time.Second)
	var logged bytes.Buffer
	s.Logger = log.New(&logged, "", 0)
	if err := s.Configure(smu.Config{Level: 1e-3, Limit: 5}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(logged.String(), "MODEL 2450,04096218") {
		t.Errorf("expected the instrument identity to be logged, got %q", logged.String())
	}
	if err := s.SetOutput(true); err != nil {
		t.Fatal(err)
	}
	r, err := s.SampleOnce(smu.DefaultDigits)
	if err != nil {
		t.Fatal(err)
	}
	if r.Elapsed != 0.125 || r.Source != 1e-3 || r.Measured != 2 {
		t.Errorf("unexpected reading %+v", r)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	// the pool is gone; further calls are I/O errors
	if err := s.SetLevel(0); !errors.Is(err, smu.ErrInstrumentIO) {
		t.Errorf("expected an instrument I/O error after close, got %v", err)
	}
}

func TestSampleTimesOut(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		c, err := l.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(time.Second) // never answers
		}
	}()
	s := NewTCP(l.Addr().String(), 50*time.Millisecond)
	defer s.Close()
	if _, err := s.SampleOnce(9); !errors.Is(err, smu.ErrInstrumentIO) {
		t.Errorf("expected a timeout to surface as an instrument I/O error, got %v", err)
	}
}

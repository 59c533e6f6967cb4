package scpi_test

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/cicpulse/comm"
	"github.com/nasa-jpl/cicpulse/scpi"
)

// fakeInstrument answers "print(...)" lines with canned text and records
// every line it receives
type fakeInstrument struct {
	mu    sync.Mutex
	lines []string
	reply string
}

func (f *fakeInstrument) serve(t *testing.T) string {
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
					line = strings.TrimRight(line, "\n")
					f.mu.Lock()
					f.lines = append(f.lines, line)
					reply := f.reply
					f.mu.Unlock()
					if scpi.IsQuery(line) {
						c.Write([]byte(reply + "\r\n"))
					}
				}
			}(c)
		}
	}()
	return l.Addr().String()
}

func (f *fakeInstrument) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func setup(t *testing.T, reply string) (*scpi.SCPI, *fakeInstrument) {
	f := &fakeInstrument{reply: reply}
	addr := f.serve(t)
	pool := comm.NewPool(1, time.Second, comm.BackingOffTCPConnMaker(addr, time.Second))
	t.Cleanup(func() { pool.Close() })
	return &scpi.SCPI{Pool: pool, Timeout: time.Second}, f
}

func TestWriteJoinsCommands(t *testing.T) {
	s, f := setup(t, "")
	if err := s.Write("reset()", "defbuffer1.clear()"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadString("print(1)"); err != nil {
		t.Fatal(err)
	}
	want := []string{"reset() defbuffer1.clear()", "print(1)"}
	if diff := cmp.Diff(want, f.received()); diff != "" {
		t.Errorf("lines (-want +got):\n%s", diff)
	}
}

func TestReadFloatsSplitsTabs(t *testing.T) {
	s, _ := setup(t, "1.5\t-2e-3\t4")
	vs, err := s.ReadFloats("print(a, b, c)")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1.5, -2e-3, 4}, vs); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestRawOnlyReadsQueries(t *testing.T) {
	s, _ := setup(t, "KEITHLEY")
	resp, err := s.Raw("*IDN?")
	if err != nil || resp != "KEITHLEY" {
		t.Errorf("expected KEITHLEY, got %q %v", resp, err)
	}
	resp, err = s.Raw("smu.source.output = smu.OFF")
	if err != nil || resp != "" {
		t.Errorf("expected empty response to a command, got %q %v", resp, err)
	}
}

func TestParseFloatsRejectsText(t *testing.T) {
	if _, err := scpi.ParseFloats("1.0, nil"); err == nil {
		t.Error("expected an error parsing nil")
	}
}

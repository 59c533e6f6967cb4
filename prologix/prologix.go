// Package prologix talks to GPIB instruments through a Prologix GPIB-USB
// controller, which shows up as a serial port.
//
// The controller is put in controller mode with read-after-write enabled and
// addressed to one instrument, after which lines written to the port go to
// the instrument and its replies come back on the port.  Lines beginning with
// "++" are consumed by the controller itself.
package prologix

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"

	"github.com/nasa-jpl/cicpulse/comm"
)

// DefaultBaud is ignored by the USB controller but required by serial drivers
const DefaultBaud = 115200

// Controller is a Prologix-addressed link to one GPIB instrument
type Controller struct {
	rwc  io.ReadWriteCloser
	Addr int
}

// setup returns the controller commands that address instrument addr
func setup(addr int) []string {
	return []string{
		"++mode 1",           // controller
		fmt.Sprintf("++addr %d", addr),
		"++auto 1",           // read after write
		"++eos 2",            // append LF to instrument writes
		"++eoi 1",            // assert EOI with the last byte
		"++read_tmo_ms 3000", // inter-character timeout
	}
}

// New addresses the instrument at GPIB address addr through rwc.
// Address must be in [0, 30].
func New(rwc io.ReadWriteCloser, addr int) (*Controller, error) {
	if addr < 0 || addr > 30 {
		return nil, fmt.Errorf("prologix: GPIB address %d outside [0, 30]", addr)
	}
	c := &Controller{rwc: rwc, Addr: addr}
	for _, cmd := range setup(addr) {
		if _, err := io.WriteString(rwc, cmd+"\n"); err != nil {
			return nil, errors.Wrapf(err, "prologix: sending %q", cmd)
		}
	}
	return c, nil
}

// Maker returns a comm.CreationFunc which opens the serial port and addresses
// the instrument each time a connection is made
func Maker(port string, addr int, timeout time.Duration) comm.CreationFunc {
	conf := &serial.Config{Name: port, Baud: DefaultBaud, ReadTimeout: timeout}
	return func() (io.ReadWriteCloser, error) {
		sp, err := serial.OpenPort(conf)
		if err != nil {
			return nil, err
		}
		c, err := New(sp, addr)
		if err != nil {
			sp.Close()
			return nil, err
		}
		return c, nil
	}
}

// Write passes data to the instrument.  ESC, "+", CR and LF inside a
// command would be taken by the controller, so they are escaped; the
// terminating newline is left bare.
func (c *Controller) Write(p []byte) (int, error) {
	body := string(p)
	term := ""
	if strings.HasSuffix(body, "\n") {
		body, term = body[:len(body)-1], "\n"
	}
	_, err := io.WriteString(c.rwc, Escape(body)+term)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read reads from the controller
func (c *Controller) Read(p []byte) (int, error) {
	return c.rwc.Read(p)
}

// Close returns the instrument to local control and closes the port
func (c *Controller) Close() error {
	_, err := io.WriteString(c.rwc, "++loc\n")
	cerr := c.rwc.Close()
	if err != nil {
		return err
	}
	return cerr
}

// Escape prefixes the characters the controller interprets with ESC
func Escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case 0x1B, '+', '\r', '\n':
			b.WriteByte(0x1B)
		}
		b.WriteRune(r)
	}
	return b.String()
}

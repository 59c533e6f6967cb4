// Package scpi provides line-oriented command and query primitives for
// instruments with text interfaces, SCPI or TSP alike, on top of a comm.Pool
package scpi

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/cicpulse/comm"
)

const (
	// DefaultTimeout is the per-call I/O deadline used when Timeout is zero
	DefaultTimeout = 5 * time.Second

	frameSize = 1500
)

// SCPI is a type for encapsulating line-based instrument communication
type SCPI struct {
	Pool *comm.Pool

	// Timeout is the deadline renewed on every read and write.
	// A timed out call is an error; it is never retried.
	Timeout time.Duration

	// Separator joins multiple commands into one line.  TSP accepts
	// whitespace between statements; SCPI wants ";".  Defaults to " ".
	Separator string
}

func (s *SCPI) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s *SCPI) join(cmds []string) string {
	sep := s.Separator
	if sep == "" {
		sep = " "
	}
	return strings.Join(cmds, sep)
}

// Write sends one or more commands to the device as a single line
func (s *SCPI) Write(cmds ...string) error {
	conn, err := s.Pool.Get()
	if err != nil {
		return err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, s.timeout())
	if err != nil {
		return err
	}
	_, err = io.WriteString(wrap, s.join(cmds))
	return err
}

// WriteRead is write, but with a read call after.  It is assumed that "get"
// calls use this underlying mechanism
func (s *SCPI) WriteRead(cmds ...string) ([]byte, error) {
	conn, err := s.Pool.Get()
	if err != nil {
		return nil, err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, s.timeout())
	if err != nil {
		return nil, err
	}
	_, err = io.WriteString(wrap, s.join(cmds))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, frameSize)
	var n int
	n, err = wrap.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// ReadString sends a command to the device, the reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *SCPI) ReadString(cmds ...string) (string, error) {
	resp, err := s.WriteRead(cmds...)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(resp), "\r\n"), nil
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value
func (s *SCPI) ReadFloat(cmds ...string) (float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// ReadFloats sends a command to the device, then parses a response holding
// several numbers separated by whitespace or commas
func (s *SCPI) ReadFloats(cmds ...string) ([]float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return nil, err
	}
	return ParseFloats(resp)
}

// ParseFloats splits s on whitespace and commas and parses every field
func ParseFloats(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("scpi: field %d of %q: %w", i, s, err)
		}
		out[i] = v
	}
	return out, nil
}

// ReadBool sends a command to the device, then reads the
// response and parses it as a boolean
func (s *SCPI) ReadBool(cmds ...string) (bool, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(resp))
}

// IsQuery returns true if a command produces a response: SCPI queries end in
// "?", TSP queries print
func IsQuery(cmd string) bool {
	return strings.Contains(cmd, "?") || strings.Contains(cmd, "print(")
}

// Raw sends a command to the instrument and returns a response if it was a
// query, else a blank string
func (s *SCPI) Raw(str string) (string, error) {
	if IsQuery(str) {
		return s.ReadString(str)
	}
	return "", s.Write(str)
}

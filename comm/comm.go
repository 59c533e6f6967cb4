/*Package comm provides connection makers, io wrappers, and a connection pool
for communication with line-oriented lab hardware.

Most usages of this package will boil down to:
	1.  pick a CreationFunc for the physical link (TCP, serial, or one you
		write yourself, e.g. USB-TMC or a GPIB bridge)
	2.  hand it to NewPool
	3.  on every exchange, Get a connection from the pool, wrap it in a
		Terminator and a Timeout, do the exchange, and return it with
		ReturnWithError

A minimal example for a sensor that responds to "RD?" with a number:

	maker := comm.BackingOffTCPConnMaker("192.168.100.10:5025", time.Second)
	pool := comm.NewPool(1, 10*time.Second, maker)
	conn, err := pool.Get()
	if err != nil {
		return 0, err
	}
	defer func() { pool.ReturnWithError(conn, err) }()
	rw := comm.NewTerminator(conn, '\n', '\n')
	_, err = io.WriteString(rw, "RD?")
	...
*/
package comm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

// BackingOffTCPConnMaker returns a CreationFunc that dials addr, retrying with
// an exponential backoff for up to three seconds.  A refused connection is
// not retried, the remote is there and does not want to talk.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			c, err := TCPSetup(addr, timeout)
			if err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "refused") {
					return backoff.Permanent(err)
				}
				return err
			}
			conn = c
			return nil
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, fmt.Errorf("connection to %s failed: %w", addr, err)
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc that opens the serial port described by conf
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(conf)
	}
}

// deadliner is anything with a SetDeadline method, e.g. a net.Conn
type deadliner interface {
	SetDeadline(time.Time) error
}

// Terminator wraps an io.ReadWriter, appending Tx to every write and reading
// until Rx, which is stripped from the returned data
type Terminator struct {
	rw io.ReadWriter
	br *bufio.Reader
	Tx byte
	Rx byte
}

// NewTerminator creates a new Terminator around rw
func NewTerminator(rw io.ReadWriter, tx, rx byte) *Terminator {
	return &Terminator{rw: rw, br: bufio.NewReader(rw), Tx: tx, Rx: rx}
}

// Write writes p followed by the Tx terminator in a single call.
// The returned count excludes the terminator.
func (t *Terminator) Write(p []byte) (int, error) {
	buf := make([]byte, len(p), len(p)+1)
	copy(buf, p)
	buf = append(buf, t.Tx)
	n, err := t.rw.Write(buf)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Read reads one message up to and including the Rx terminator and copies it,
// less the terminator, into p.  A trailing carriage return is also stripped
// when Rx is a newline.
func (t *Terminator) Read(p []byte) (int, error) {
	line, err := t.br.ReadBytes(t.Rx)
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			return copy(p, line), ErrTerminatorNotFound
		}
		return 0, err
	}
	line = line[:len(line)-1]
	if t.Rx == '\n' && len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	if len(line) > len(p) {
		return copy(p, line), io.ErrShortBuffer
	}
	return copy(p, line), nil
}

// SetDeadline forwards to the wrapped ReadWriter if it supports deadlines,
// otherwise it does nothing
func (t *Terminator) SetDeadline(tm time.Time) error {
	if dl, ok := t.rw.(deadliner); ok {
		return dl.SetDeadline(tm)
	}
	return nil
}

// Timeout wraps an io.ReadWriter and renews a deadline before every Read and Write
type Timeout struct {
	rw io.ReadWriter
	dl deadliner
	d  time.Duration
}

// NewTimeout wraps rw so every operation must complete within d.  If rw
// does not support deadlines it is returned unchanged, transports like
// serial and USB-TMC carry their own timeouts.
func NewTimeout(rw io.ReadWriter, d time.Duration) (io.ReadWriter, error) {
	dl, ok := rw.(deadliner)
	if !ok {
		return rw, nil
	}
	if err := dl.SetDeadline(time.Now().Add(d)); err != nil {
		return nil, err
	}
	return &Timeout{rw: rw, dl: dl, d: d}, nil
}

// Read satisfies io.Reader
func (t *Timeout) Read(p []byte) (int, error) {
	if err := t.dl.SetDeadline(time.Now().Add(t.d)); err != nil {
		return 0, err
	}
	return t.rw.Read(p)
}

// Write satisfies io.Writer
func (t *Timeout) Write(p []byte) (int, error) {
	if err := t.dl.SetDeadline(time.Now().Add(t.d)); err != nil {
		return 0, err
	}
	return t.rw.Write(p)
}

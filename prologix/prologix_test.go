package prologix

import (
	"bytes"
	"strings"
	"testing"
)

type buffer struct {
	bytes.Buffer
	closed bool
}

func (b *buffer) Close() error {
	b.closed = true
	return nil
}

func TestNewAddressesInstrument(t *testing.T) {
	var b buffer
	if _, err := New(&b, 18); err != nil {
		t.Fatal(err)
	}
	s := b.String()
	for _, want := range []string{"++mode 1\n", "++addr 18\n", "++auto 1\n"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in controller setup %q", want, s)
		}
	}
}

func TestNewRejectsBadAddress(t *testing.T) {
	var b buffer
	if _, err := New(&b, 31); err == nil {
		t.Error("expected address 31 to be rejected")
	}
}

func TestWriteEscapesPlus(t *testing.T) {
	var b buffer
	c, _ := New(&b, 1)
	b.Reset()
	n, err := c.Write([]byte("print(1+2)\n"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 11 {
		t.Errorf("expected 11 bytes reported written, got %d", n)
	}
	if got := b.String(); got != "print(1\x1b+2)\n" {
		t.Errorf("unexpected escaped write %q", got)
	}
}

func TestCloseReturnsToLocal(t *testing.T) {
	var b buffer
	c, _ := New(&b, 1)
	b.Reset()
	c.Close()
	if b.String() != "++loc\n" || !b.closed {
		t.Errorf("expected ++loc and a closed port, got %q closed=%v", b.String(), b.closed)
	}
}

/*Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices, and exposes a bulk-transfer device as an
io.ReadWriteCloser so it can sit in a comm.Pool like a TCP or serial link.

It does not include features to support multi-packet messaging, and thus
assumes a reply fits in one bulk-in transfer.  Readings from an SMU are a few
dozen bytes, far under that limit.

To send a message:
1.  Allocate a send buffer
2.  Write the header to it
3.  Write your data to it
4.  Ensure that the total transmission size is a multiple of 4 bytes before flushing

To receive a message:
1.  Create a read request header and send it on the Out endpoint
2.  Read from the In endpoint
3.  Strip the 12 byte header and trim to the transfer size it declares
*/
package usbtmc

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/gousb"

	"github.com/nasa-jpl/cicpulse/comm"
)

const (
	// reserved is the byte to insert in reserved header fields
	reserved = 0x00

	headerSize = 12

	// bufSize is the largest reply requested from the device
	bufSize = 1500

	msgDevDepOut = 0x01
	msgDevDepIn  = 0x02
)

// KeithleyVID is the USB vendor ID of Keithley Instruments
const KeithleyVID = 0x05E6

// Keithley2450PID is the USB product ID of the 2450 SMU
const Keithley2450PID = 0x2450

// BTagger can generate atomic bTags
type BTagger interface {
	nextbTag() byte
}

// bTagGen is a concurrent-safe bTag generator
type bTagGen struct {
	sync.Mutex

	value byte
	min   byte
}

func newBTagGen() *bTagGen {
	return &bTagGen{value: 0, min: 1}
}

// nextbTag cycles through 1..255; zero is not a legal bTag
func (b *bTagGen) nextbTag() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value < b.min {
		b.value = b.min
	}
	return b.value
}

// invbTag computes the bitwise inversion of a btag, per USBTMC standard table 1 offset 2
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encBulkOutHeader creates the header defined in USBTMC standard, Table 3
func encBulkOutHeader(btag BTagger, datalen int) [headerSize]byte {
	/* data map by offset:
	0 MsgID, DEV_DEP_MSG_OUT
	1 bTag
	2 bTagInverse
	3 Reserved
	4-7 transferSize, LSB first, excludes header and alignment
	8 bitmap, bit 0 EOM
	9-11 reserved
	*/
	out := [headerSize]byte{}
	tag := btag.nextbTag()
	out[0] = msgDevDepOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01 // every write is a complete message
	return out
}

// encBulkInHeader creates the header defined in USBTMC standard, Table 4.
// if terminator is nil, puts 0x00 in the header and sets the bit to use it to false
func encBulkInHeader(btag BTagger, size int, terminator *byte) [headerSize]byte {
	out := [headerSize]byte{}
	tag := btag.nextbTag()
	out[0] = msgDevDepIn
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(size))
	if terminator != nil {
		out[8] = 0x02 // TermCharEnabled
		out[9] = *terminator
	}
	return out
}

// decBulkInPayload validates the header of a bulk-in transfer and returns
// the message bytes it carries, without alignment padding
func decBulkInPayload(buf []byte) ([]byte, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("usbtmc: only received %d bytes, need at least %d to form header", len(buf), headerSize)
	}
	if buf[0] != msgDevDepIn {
		return nil, fmt.Errorf("usbtmc: unexpected MsgID %#x in bulk-in header", buf[0])
	}
	if buf[2] != invbTag(buf[1]) {
		return nil, fmt.Errorf("usbtmc: bTag %#x and its inverse %#x disagree", buf[1], buf[2])
	}
	size := int(binary.LittleEndian.Uint32(buf[4:8]))
	data := buf[headerSize:]
	if size > len(data) {
		return nil, fmt.Errorf("usbtmc: header declares %d bytes, transfer holds %d", size, len(data))
	}
	return data[:size], nil
}

// padded returns b extended with zeros to a multiple of four bytes
func padded(b []byte) []byte {
	const alignment = 4
	if residual := len(b) % alignment; residual > 0 {
		b = append(b, make([]byte, alignment-residual)...)
	}
	return b
}

// USBDevice is a struct hiding the details of USB and exposing an io.ReadWriteCloser interface
type USBDevice struct {
	tagger BTagger
	ctx    *gousb.Context
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	device *gousb.Device
	iface  *gousb.Interface
	closer func()

	// pending holds reply bytes that did not fit the caller's buffer
	pending []byte
}

// NewUSBDevice opens a USB-TMC device from its vendor and product ID
func NewUSBDevice(vid, pid uint16) (*USBDevice, error) {
	out := &USBDevice{tagger: newBTagGen(), ctx: gousb.NewContext()}
	var err error
	out.device, err = out.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		out.ctx.Close()
		return nil, err
	}
	if out.device == nil {
		out.ctx.Close()
		return nil, fmt.Errorf("usbtmc: no device with VID %04x PID %04x", vid, pid)
	}
	if err = out.device.SetAutoDetach(true); err != nil {
		out.Close()
		return nil, err
	}
	out.iface, out.closer, err = out.device.DefaultInterface()
	if err != nil {
		out.Close()
		return nil, err
	}
	// bulk-out is endpoint 2 on the 2450; bulk-in is 0x82 (number 2)
	out.in, err = out.iface.InEndpoint(2)
	if err != nil {
		out.Close()
		return nil, err
	}
	out.out, err = out.iface.OutEndpoint(2)
	if err != nil {
		out.Close()
		return nil, err
	}
	return out, nil
}

// Maker returns a comm.CreationFunc that opens the device on demand
func Maker(vid, pid uint16) comm.CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return NewUSBDevice(vid, pid)
	}
}

// Read requests a reply from the device and copies it into p
func (d *USBDevice) Read(p []byte) (int, error) {
	if len(d.pending) > 0 {
		n := copy(p, d.pending)
		d.pending = d.pending[n:]
		return n, nil
	}
	term := byte('\n')
	hdr := encBulkInHeader(d.tagger, bufSize, &term)
	n, err := d.out.Write(hdr[:])
	if err != nil {
		return 0, err
	}
	if n != headerSize {
		return 0, fmt.Errorf("usbtmc: wrote %d bytes, not full %d required to transmit read request", n, headerSize)
	}
	buf := make([]byte, bufSize+headerSize)
	n, err = d.in.Read(buf)
	if err != nil {
		return 0, err
	}
	data, err := decBulkInPayload(buf[:n])
	if err != nil {
		return 0, err
	}
	n = copy(p, data)
	d.pending = data[n:]
	return n, nil
}

// Write sends b as one complete USB-TMC message
func (d *USBDevice) Write(b []byte) (int, error) {
	hdr := encBulkOutHeader(d.tagger, len(b))
	msg := padded(append(hdr[:], b...))
	_, err := d.out.Write(msg)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close releases the interface, the device, and the USB context
func (d *USBDevice) Close() error {
	if d.closer != nil {
		d.closer()
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
	}
	if d.ctx != nil {
		if cerr := d.ctx.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/snksoft/crc"

	"github.com/nasa-jpl/cicpulse/experiment"
)

// crcTable is the CRC-16/XMODEM table used for file checksums
var crcTable = crc.NewTable(crc.XMODEM)

// crcWriter checksums everything written through it
type crcWriter struct {
	w   io.Writer
	crc uint64
}

func newCRCWriter(w io.Writer) *crcWriter {
	return &crcWriter{w: w, crc: crcTable.InitCrc()}
}

func (c *crcWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.crc = crcTable.UpdateCrc(c.crc, p[:n])
	return n, err
}

func (c *crcWriter) Sum() uint16 {
	return crcTable.CRC16(c.crc)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// WriteCSV writes the repaired samples of res, one row each in time order,
// under a header naming the four channels.  It returns the CRC-16/XMODEM of
// the bytes written.
func WriteCSV(w io.Writer, res *experiment.Result) (uint16, error) {
	cw := newCRCWriter(w)
	enc := csv.NewWriter(cw)
	cols := res.Columns()
	if err := enc.Write(cols[:]); err != nil {
		return 0, err
	}
	row := make([]string, 4)
	for _, s := range res.Samples {
		row[0] = formatFloat(s.Time)
		row[1] = formatFloat(s.Source)
		row[2] = formatFloat(s.Measured)
		row[3] = strconv.Itoa(s.Cycle)
		if err := enc.Write(row); err != nil {
			return 0, err
		}
	}
	enc.Flush()
	return cw.Sum(), enc.Error()
}

// Checksum returns the CRC-16/XMODEM of b, for verifying an exported file
func Checksum(b []byte) uint16 {
	return crcTable.CRC16(crcTable.UpdateCrc(crcTable.InitCrc(), b))
}

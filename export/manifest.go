package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/nasa-jpl/cicpulse/experiment"
	"github.com/nasa-jpl/cicpulse/waveform"
)

// Manifest is the JSON summary written next to every experiment's data
type Manifest struct {
	Title    string              `json:"title"`
	Shape    string              `json:"shape"`
	Params   waveform.Parameters `json:"parameters"`
	Columns  [4]string           `json:"columns"`
	Cycles   int                 `json:"cycles"`
	Rows     int                 `json:"rows"`
	Jumps    int                 `json:"clockResets"`
	Complete bool                `json:"complete"`
	Started  time.Time           `json:"started"`
	Finished time.Time           `json:"finished"`

	// Files are base names, relative to the manifest
	Files Paths `json:"files"`

	// CSVChecksum is the CRC-16/XMODEM of the csv file as hex, if one was written
	CSVChecksum string `json:"csvCrc16,omitempty"`
}

// NewManifest summarizes res; crc is the checksum of the csv, if written
func NewManifest(res *experiment.Result, paths Paths, crc uint16) Manifest {
	base := func(p string) string {
		if p == "" {
			return ""
		}
		return filepath.Base(p)
	}
	m := Manifest{
		Title:    res.Title,
		Shape:    res.Shape.String(),
		Params:   res.Params,
		Columns:  res.Columns(),
		Cycles:   len(res.Plans),
		Rows:     len(res.Samples),
		Jumps:    res.Jumps,
		Complete: res.Complete,
		Started:  res.Started,
		Finished: res.Finished,
		Files: Paths{
			CSV:      base(paths.CSV),
			FITS:     base(paths.FITS),
			PNG:      base(paths.PNG),
			Manifest: base(paths.Manifest),
		},
	}
	if paths.CSV != "" {
		m.CSVChecksum = fmt.Sprintf("%04x", crc)
	}
	return m
}

// Encode writes m as indented JSON
func (m Manifest) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

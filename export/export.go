// Package export writes the results of an experiment to disk.
//
// Files for one experiment share a stem
//
//	<root>/<YYYY-MM-DD>/<title>_HH_MM_SS
//
// with "_trialN" appended if a file with that stem already exists, and the
// extensions .csv, .fits, .png, and .json (a manifest).
package export

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/cicpulse/chart"
	"github.com/nasa-jpl/cicpulse/experiment"
)

// Options selects what Save writes
type Options struct {
	// Root is the directory holding the dated session directories
	Root string

	// CSV, FITS, and Plot select the artifacts; the manifest is always written
	CSV  bool
	FITS bool
	Plot bool

	// Now stamps the session; time.Now when nil
	Now func() time.Time

	// Logger, if not nil, is told about each file written
	Logger *log.Logger
}

func (o Options) logf(format string, args ...interface{}) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}

// Paths are the files written by Save.  Unwritten artifacts are empty.
type Paths struct {
	CSV      string `json:"csv,omitempty"`
	FITS     string `json:"fits,omitempty"`
	PNG      string `json:"png,omitempty"`
	Manifest string `json:"manifest"`
}

// SanitizeTitle makes a title safe to use in a file name
func SanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "experiment"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, title)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Stem creates the session directory for now under root and returns the
// path, less extension, that files for title should be written to
func Stem(root, title string, now time.Time) (string, error) {
	dir := filepath.Join(root, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Join(dir, SanitizeTitle(title)+now.Format("_15_04_05"))
	stem := base
	for trial := 1; ; trial++ {
		taken := false
		for _, ext := range []string{".csv", ".fits", ".png", ".json"} {
			if exists(stem + ext) {
				taken = true
				break
			}
		}
		if !taken {
			return stem, nil
		}
		stem = fmt.Sprintf("%s_trial%d", base, trial)
	}
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err = fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SeriesOf converts a result to chart data
func SeriesOf(res *experiment.Result) chart.Series {
	cols := res.Columns()
	s := chart.Series{
		Title:         res.Title,
		Time:          make([]float64, len(res.Samples)),
		Measured:      make([]float64, len(res.Samples)),
		Source:        make([]float64, len(res.Samples)),
		MeasuredLabel: fmt.Sprintf("%s (%s)", cols[2], res.Measure.Unit()),
		SourceLabel:   fmt.Sprintf("%s (%s)", cols[1], res.Source.Unit()),
	}
	if s.Title == "" {
		s.Title = res.Shape.String()
	}
	for i, smp := range res.Samples {
		s.Time[i] = smp.Time
		s.Measured[i] = smp.Measured
		s.Source[i] = smp.Source
	}
	return s
}

// Save writes the selected artifacts of res and its manifest
func Save(res *experiment.Result, opts Options) (Paths, error) {
	var paths Paths
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	stem, err := Stem(opts.Root, res.Title, now())
	if err != nil {
		return paths, errors.Wrap(err, "export: creating session directory")
	}
	var crc uint16
	if opts.CSV {
		paths.CSV = stem + ".csv"
		err = writeFile(paths.CSV, func(w io.Writer) error {
			var err error
			crc, err = WriteCSV(w, res)
			return err
		})
		if err != nil {
			return paths, errors.Wrapf(err, "export: writing %s", paths.CSV)
		}
		opts.logf("wrote %d rows to %s", len(res.Samples), paths.CSV)
	}
	if opts.FITS {
		paths.FITS = stem + ".fits"
		err = writeFile(paths.FITS, func(w io.Writer) error { return WriteFITS(w, res) })
		if err != nil {
			return paths, errors.Wrapf(err, "export: writing %s", paths.FITS)
		}
		opts.logf("wrote %s", paths.FITS)
	}
	if opts.Plot {
		paths.PNG = stem + ".png"
		err = writeFile(paths.PNG, func(w io.Writer) error { return chart.WritePNG(w, SeriesOf(res)) })
		if err != nil {
			return paths, errors.Wrapf(err, "export: writing %s", paths.PNG)
		}
		opts.logf("wrote %s", paths.PNG)
	}
	paths.Manifest = stem + ".json"
	m := NewManifest(res, paths, crc)
	err = writeFile(paths.Manifest, func(w io.Writer) error { return m.Encode(w) })
	if err != nil {
		return paths, errors.Wrapf(err, "export: writing %s", paths.Manifest)
	}
	return paths, nil
}

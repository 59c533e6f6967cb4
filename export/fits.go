package export

import (
	"io"

	"github.com/astrogo/fitsio"

	"github.com/nasa-jpl/cicpulse/experiment"
)

// fitsCards describes the experiment in the table header
func fitsCards(res *experiment.Result) []fitsio.Card {
	p := res.Params
	return []fitsio.Card{
		{Name: "TITLE", Value: res.Title},
		{Name: "SHAPE", Value: res.Shape.String()},
		{Name: "NPULSES", Value: p.NumPulses, Comment: "number of cycles"},
		{Name: "IPI", Value: p.InterPulseInterval, Comment: "inter-pulse interval, s"},
		{Name: "IPD", Value: p.InterPhaseDelay, Comment: "inter-phase delay, s"},
		{Name: "ANOFIRST", Value: p.AnodicFirst, Comment: "anodic phase first"},
		{Name: "VCOMPL", Value: p.ComplianceVoltage, Comment: "compliance voltage, V"},
		{Name: "JUMPS", Value: res.Jumps, Comment: "clock resets repaired"},
		{Name: "COMPLETE", Value: res.Complete},
		{Name: "DATE-OBS", Value: res.Started.UTC().Format("2006-01-02T15:04:05.000")},
	}
}

// WriteFITS streams the repaired samples of res to w as a FITS binary table
// with columns TIME, SOURCE, MEASURED, and CYCLE
func WriteFITS(w io.Writer, res *experiment.Result) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer f.Close()
	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		return err
	}
	if err = f.Write(phdu); err != nil {
		return err
	}

	cols := []fitsio.Column{
		{Name: "TIME", Format: "D", Unit: "s"},
		{Name: "SOURCE", Format: "D", Unit: res.Source.Unit()},
		{Name: "MEASURED", Format: "D", Unit: res.Measure.Unit()},
		{Name: "CYCLE", Format: "K"},
	}
	tbl, err := fitsio.NewTable("SAMPLES", cols, fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()
	if err = tbl.Header().Append(fitsCards(res)...); err != nil {
		return err
	}
	for _, s := range res.Samples {
		cycle := int64(s.Cycle)
		if err = tbl.Write(&s.Time, &s.Source, &s.Measured, &cycle); err != nil {
			return err
		}
	}
	return f.Write(tbl)
}

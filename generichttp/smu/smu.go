// Package smu provides an HTTP interface for manual control of a
// source-measure unit.
//
// Each request opens the instrument, performs one operation, and closes it
// again, so the routes never hold the connection an experiment needs.
package smu

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nasa-jpl/cicpulse/generichttp"
	"github.com/nasa-jpl/cicpulse/server"
	device "github.com/nasa-jpl/cicpulse/smu"
)

// Opener connects to the instrument
type Opener func() (device.Instrument, error)

// ErrUnsupported is returned when the instrument lacks an optional capability
var ErrUnsupported = errors.New("smu: operation not supported by this instrument")

// with opens the instrument, calls fn, and closes it, returning the first error
func with(open Opener, fn func(device.Instrument) error) (err error) {
	inst, err := open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := inst.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(inst)
}

func status(err error) int {
	if errors.Is(err, ErrUnsupported) {
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// Identify replies with the identification string as {"str": ...}
func Identify(open Opener) http.HandlerFunc {
	return generichttp.GetString(func() (string, error) {
		var id string
		err := with(open, func(inst device.Instrument) error {
			idr, ok := inst.(device.Identifier)
			if !ok {
				return ErrUnsupported
			}
			var err error
			id, err = idr.Identify()
			return err
		})
		return id, err
	})
}

// SetOutput turns the output on or off from {"bool": ...}
func SetOutput(open Opener) http.HandlerFunc {
	return generichttp.SetBool(func(b bool) error {
		return with(open, func(inst device.Instrument) error { return inst.SetOutput(b) })
	})
}

// SetLevel sets the source level from {"f64": ...}
func SetLevel(open Opener) http.HandlerFunc {
	return generichttp.SetFloat(func(f float64) error {
		return with(open, func(inst device.Instrument) error { return inst.SetLevel(f) })
	})
}

// Raw sends {"str": ...} to the instrument and replies with its answer, if
// the text is a query
func Raw(open Opener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := server.StrT{}
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var resp string
		err = with(open, func(inst device.Instrument) error {
			rwr, ok := inst.(device.Rawer)
			if !ok {
				return ErrUnsupported
			}
			var err error
			resp, err = rwr.Raw(s.Str)
			return err
		})
		if err != nil {
			http.Error(w, err.Error(), status(err))
			return
		}
		server.ReplyJSON(w, server.StrT{Str: resp})
	}
}

// Sample takes one reading with the instrument's present configuration and
// replies with {"elapsed": ..., "source": ..., "measured": ...}
func Sample(open Opener, digits int) http.HandlerFunc {
	type reading struct {
		Elapsed  float64 `json:"elapsed"`
		Source   float64 `json:"source"`
		Measured float64 `json:"measured"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var rd device.Reading
		err := with(open, func(inst device.Instrument) error {
			var err error
			rd, err = inst.SampleOnce(digits)
			return err
		})
		if err != nil {
			http.Error(w, err.Error(), status(err))
			return
		}
		server.ReplyJSON(w, reading{Elapsed: rd.Elapsed, Source: rd.Source, Measured: rd.Measured})
	}
}

// HTTPSMU wraps an instrument opener in an HTTP route table
type HTTPSMU struct {
	Open Opener

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPSMU returns the manual control routes for the instrument open returns
func NewHTTPSMU(open Opener, digits int) HTTPSMU {
	if digits <= 0 {
		digits = device.DefaultDigits
	}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/idn"}:     Identify(open),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/output"}: SetOutput(open),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/level"}:  SetLevel(open),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/raw"}:    Raw(open),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/sample"}:  Sample(open, digits),
	}
	return HTTPSMU{Open: open, RouteTable: rt}
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPSMU) RT() generichttp.RouteTable {
	return h.RouteTable
}

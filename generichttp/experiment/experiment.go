// Package experiment provides an HTTP interface to run pulse experiments and
// fetch their results
package experiment

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nasa-jpl/cicpulse/config"
	exp "github.com/nasa-jpl/cicpulse/experiment"
	"github.com/nasa-jpl/cicpulse/export"
	"github.com/nasa-jpl/cicpulse/generichttp"
	"github.com/nasa-jpl/cicpulse/server"
	"github.com/nasa-jpl/cicpulse/server/middleware/locker"
	"github.com/nasa-jpl/cicpulse/waveform"
)

// Status maps an error from a run to an HTTP status code: 400 for a bad
// waveform, 500 for instrument and other failures
func Status(err error) int {
	if errors.Is(err, waveform.ErrConfiguration) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Summary is the reply to a run and to GET /experiment/last
type Summary struct {
	Title    string       `json:"title"`
	Shape    string       `json:"shape"`
	Columns  [4]string    `json:"columns"`
	Cycles   int          `json:"cycles"`
	Rows     int          `json:"rows"`
	Jumps    int          `json:"clockResets"`
	Complete bool         `json:"complete"`
	Error    string       `json:"error,omitempty"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Files    export.Paths `json:"files"`
}

type metrics struct {
	reg      *prometheus.Registry
	runs     *prometheus.CounterVec
	samples  prometheus.Counter
	resets   prometheus.Counter
	running  prometheus.Gauge
	measured prometheus.Gauge
	source   prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "cicpulse",
			Name:      "experiments_total",
			Help:      "experiments run, by outcome",
		}, []string{"outcome"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: "cicpulse",
			Name:      "samples_total",
			Help:      "readings recorded across all experiments",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: "cicpulse",
			Name:      "clock_resets_total",
			Help:      "instrument clock resets repaired",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: "cicpulse",
			Name:      "experiment_running",
			Help:      "1 while an experiment is running",
		}),
		measured: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: "cicpulse",
			Name:      "measured",
			Help:      "most recent measured value",
		}),
		source: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: "cicpulse",
			Name:      "source",
			Help:      "most recent sourced value",
		}),
	}
	m.reg.MustRegister(m.runs, m.samples, m.resets, m.running, m.measured, m.source)
	return m
}

func (m *metrics) observe(s exp.Sample) {
	m.samples.Inc()
	m.measured.Set(s.Measured)
	m.source.Set(s.Source)
}

// HTTPExperiment runs experiments over HTTP.  Only one runs at a time; the
// shared Locker is held for the duration so manual instrument routes behind
// it answer 423.
type HTTPExperiment struct {
	// Open connects to the instrument for each run
	Open exp.Opener

	// Base supplies every setting a request does not
	Base config.Config

	// Lock is held while an experiment runs
	Lock *locker.Locker

	// Logger receives experiment progress; nil is silent
	Logger *log.Logger

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable

	mu      sync.Mutex
	last    *exp.Result
	lastErr error
	paths   export.Paths
	metrics *metrics
}

// NewHTTPExperiment returns the experiment routes
func NewHTTPExperiment(open exp.Opener, base config.Config, lock *locker.Locker) *HTTPExperiment {
	h := &HTTPExperiment{Open: open, Base: base, Lock: lock, metrics: newMetrics()}
	running := func() (bool, error) { return h.Lock.Locked(), nil }
	rt := generichttp.RouteTable{}
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/experiment"}] = h.Run
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/experiment/last"}] = h.Last
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/experiment/last.csv"}] = h.LastCSV
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/experiment/last.png"}] = h.LastPNG
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/experiment/running"}] = generichttp.GetBool(running)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/metrics"}] = promhttp.HandlerFor(h.metrics.reg, promhttp.HandlerOpts{}).ServeHTTP
	h.RouteTable = rt
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h *HTTPExperiment) RT() generichttp.RouteTable {
	return h.RouteTable
}

// Run decodes a waveform section from the request body over Base.Waveform,
// runs it, saves the result, and replies with a Summary.  The run is
// cancelled if the client goes away.
func (h *HTTPExperiment) Run(w http.ResponseWriter, r *http.Request) {
	cfg := h.Base
	if r.Body != nil {
		err := json.NewDecoder(r.Body).Decode(&cfg.Waveform)
		r.Body.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	e, err := cfg.Experiment()
	if err != nil {
		http.Error(w, err.Error(), Status(err))
		return
	}
	if err = e.Params.Validate(e.Shape); err != nil {
		http.Error(w, err.Error(), Status(err))
		return
	}
	if !h.Lock.TryLock() {
		http.Error(w, "an experiment is already running", http.StatusLocked)
		return
	}
	defer h.Lock.Unlock()

	e.Logger = h.Logger
	e.OnSample = h.metrics.observe
	h.metrics.running.Set(1)
	res, err := exp.Run(r.Context(), h.Open, e)
	h.metrics.running.Set(0)
	if res == nil {
		h.metrics.runs.WithLabelValues("failed").Inc()
		http.Error(w, err.Error(), Status(err))
		return
	}
	h.metrics.resets.Add(float64(res.Jumps))
	if err != nil {
		h.metrics.runs.WithLabelValues("aborted").Inc()
	} else {
		h.metrics.runs.WithLabelValues("complete").Inc()
	}

	var paths export.Paths
	if cfg.Export.Root != "" {
		var serr error
		opts := cfg.ExportOptions()
		opts.Logger = h.Logger
		paths, serr = export.Save(res, opts)
		if serr != nil {
			log.Println(serr)
			if err == nil {
				err = serr
			}
		}
	}
	h.mu.Lock()
	h.last, h.lastErr, h.paths = res, err, paths
	sum := h.summary()
	h.mu.Unlock()

	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(Status(err))
		json.NewEncoder(w).Encode(sum)
		return
	}
	server.ReplyJSON(w, sum)
}

// summary must be called with mu held
func (h *HTTPExperiment) summary() Summary {
	res := h.last
	s := Summary{
		Title:    res.Title,
		Shape:    res.Shape.String(),
		Columns:  res.Columns(),
		Cycles:   len(res.Plans),
		Rows:     len(res.Samples),
		Jumps:    res.Jumps,
		Complete: res.Complete,
		Started:  res.Started,
		Finished: res.Finished,
		Files:    h.paths,
	}
	if h.lastErr != nil {
		s.Error = h.lastErr.Error()
	}
	return s
}

func (h *HTTPExperiment) lastResult(w http.ResponseWriter) (*exp.Result, export.Paths, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		http.Error(w, "no experiment has been run", http.StatusNotFound)
		return nil, export.Paths{}, false
	}
	return h.last, h.paths, true
}

// Last replies with the Summary of the most recent experiment
func (h *HTTPExperiment) Last(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.last == nil {
		h.mu.Unlock()
		http.Error(w, "no experiment has been run", http.StatusNotFound)
		return
	}
	sum := h.summary()
	h.mu.Unlock()
	server.ReplyJSON(w, sum)
}

// LastCSV replies with the most recent experiment as CSV
func (h *HTTPExperiment) LastCSV(w http.ResponseWriter, r *http.Request) {
	res, _, ok := h.lastResult(w)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if _, err := export.WriteCSV(&buf, res); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Write(buf.Bytes())
}

// LastPNG serves the figure saved for the most recent experiment
func (h *HTTPExperiment) LastPNG(w http.ResponseWriter, r *http.Request) {
	_, paths, ok := h.lastResult(w)
	if !ok {
		return
	}
	if paths.PNG == "" {
		http.Error(w, "no figure was saved for the last experiment", http.StatusNotFound)
		return
	}
	server.ReplyWithFile(w, r, filepath.Base(paths.PNG), filepath.Dir(paths.PNG))
}

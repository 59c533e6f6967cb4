package experiment

import (
	"errors"
	"sync"
)

// ErrFinalized is returned by Record once a Collector has been finalized
var ErrFinalized = errors.New("experiment: collector is finalized")

// Sample is one recorded measurement
type Sample struct {
	// Time is the instrument clock, s.  Before repair it restarts at every
	// cycle; after repair it is non-decreasing over the whole experiment.
	Time float64

	Source   float64
	Measured float64

	// Cycle is the 1-based cycle the sample was taken in
	Cycle int
}

// Collector accumulates samples in acquisition order as four parallel
// channels.  It has one writer; readers wait until Finalize.
type Collector struct {
	mu       sync.Mutex
	times    []float64
	sources  []float64
	measured []float64
	cycles   []int
	final    bool
}

// Record appends s.  It fails only after Finalize.
func (c *Collector) Record(s Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final {
		return ErrFinalized
	}
	c.times = append(c.times, s.Time)
	c.sources = append(c.sources, s.Source)
	c.measured = append(c.measured, s.Measured)
	c.cycles = append(c.cycles, s.Cycle)
	return nil
}

// Finalize closes the collector to further writes
func (c *Collector) Finalize() {
	c.mu.Lock()
	c.final = true
	c.mu.Unlock()
}

// Len is the number of recorded samples
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.times)
}

// Times returns a copy of the raw time channel
func (c *Collector) Times() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.times...)
}

// Samples returns a copy of everything recorded, in order
func (c *Collector) Samples() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sample, len(c.times))
	for i := range out {
		out[i] = Sample{Time: c.times[i], Source: c.sources[i], Measured: c.measured[i], Cycle: c.cycles[i]}
	}
	return out
}

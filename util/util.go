// Package util contains misc internal utilities.
package util

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// FloatSliceToCSV converts a slice of floats to CSV formatted data with the
// shortest representation that round trips.
// e.g., []float64{1,2.5,3} => "1,2.5,3"
func FloatSliceToCSV(fs []float64) string {
	s := make([]string, len(fs))
	for i, v := range fs {
		s[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(s, ",")
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}

// Within returns true if lo <= x <= hi.  NaN is never within any range.
func Within(x, lo, hi float64) bool {
	return x >= lo && x <= hi
}

package waveform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nasa-jpl/cicpulse/util"
)

// Param is a waveform field that is either a single value used for every
// cycle, or a sequence holding one value per cycle.  The zero value is the
// scalar 0.
type Param struct {
	values []float64
	seq    bool
}

// Scalar returns a Param that holds v for every cycle
func Scalar(v float64) Param {
	return Param{values: []float64{v}}
}

// Sequence returns a Param holding one value per cycle.  vs is copied.
func Sequence(vs ...float64) Param {
	cp := make([]float64, len(vs))
	copy(cp, vs)
	return Param{values: cp, seq: true}
}

// IsSequence returns true if p holds per-cycle values
func (p Param) IsSequence() bool {
	return p.seq
}

// Len is the number of values held; 1 for a scalar
func (p Param) Len() int {
	if !p.seq {
		return 1
	}
	return len(p.values)
}

// Values returns a copy of the values held; a scalar yields one value
func (p Param) Values() []float64 {
	if !p.seq {
		return []float64{p.scalar()}
	}
	cp := make([]float64, len(p.values))
	copy(cp, p.values)
	return cp
}

func (p Param) scalar() float64 {
	if len(p.values) == 0 {
		return 0
	}
	return p.values[0]
}

func (p Param) String() string {
	if !p.seq {
		return strconv.FormatFloat(p.scalar(), 'g', -1, 64)
	}
	return "[" + util.FloatSliceToCSV(p.values) + "]"
}

// Expand resolves p into exactly n per-cycle values.  A scalar is repeated n
// times.  A sequence is returned as-is, and must have exactly n values.
func Expand(p Param, n int) ([]float64, error) {
	if n < 0 {
		return nil, &ConfigurationError{Field: "numPulses", Reason: fmt.Sprintf("must be non-negative, got %d", n)}
	}
	if p.seq {
		if len(p.values) != n {
			return nil, &ConfigurationError{
				Reason: fmt.Sprintf("sequence has %d values, numPulses is %d", len(p.values), n)}
		}
		return p.Values(), nil
	}
	out := make([]float64, n)
	v := p.scalar()
	for i := range out {
		out[i] = v
	}
	return out, nil
}

// MarshalJSON encodes a scalar as a number and a sequence as an array
func (p Param) MarshalJSON() ([]byte, error) {
	if !p.seq {
		return json.Marshal(p.scalar())
	}
	if p.values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.values)
}

// UnmarshalJSON accepts a number or an array of numbers
func (p *Param) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var vs []float64
		if err := json.Unmarshal(b, &vs); err != nil {
			return err
		}
		*p = Sequence(vs...)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = Scalar(v)
	return nil
}

// MarshalYAML encodes a scalar as a number and a sequence as a list
func (p Param) MarshalYAML() (interface{}, error) {
	if !p.seq {
		return p.scalar(), nil
	}
	return p.Values(), nil
}

// ParseParam converts loosely typed decoded data (from yaml, environment
// variables, or a generic map) into a Param.  Numbers become scalars, lists
// become sequences, and strings are parsed as a number or as a bracketed,
// comma or space separated list.
func ParseParam(data interface{}) (Param, error) {
	switch v := data.(type) {
	case Param:
		return v, nil
	case nil:
		return Param{}, nil
	case float64:
		return Scalar(v), nil
	case float32:
		return Scalar(float64(v)), nil
	case int:
		return Scalar(float64(v)), nil
	case int64:
		return Scalar(float64(v)), nil
	case uint64:
		return Scalar(float64(v)), nil
	case []float64:
		return Sequence(v...), nil
	case []interface{}:
		vs := make([]float64, len(v))
		for i, e := range v {
			sub, err := ParseParam(e)
			if err != nil {
				return Param{}, err
			}
			if sub.seq {
				return Param{}, fmt.Errorf("waveform: nested list at index %d", i)
			}
			vs[i] = sub.scalar()
		}
		return Sequence(vs...), nil
	case string:
		return parseParamString(v)
	}
	return Param{}, fmt.Errorf("waveform: can not use %T as a scalar or sequence", data)
}

func parseParamString(s string) (Param, error) {
	s = strings.TrimSpace(s)
	seq := strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
	if seq {
		s = s[1 : len(s)-1]
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	vs := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Param{}, err
		}
		vs[i] = v
	}
	if !seq && len(vs) == 1 {
		return Scalar(vs[0]), nil
	}
	if !seq && len(vs) == 0 {
		return Param{}, fmt.Errorf("waveform: empty value")
	}
	return Sequence(vs...), nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Package record turns the sparse extraction map into the fixed-schema
// record the classifier consumes.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/core/fields"
)

// Reason explains why a column holds its default.
type Reason string

const (
	ReasonMissing      Reason = "missing"
	ReasonUnparsable   Reason = "unparsable"
	ReasonUnrecognized Reason = "unrecognized"
)

var (
	genderCodes = map[string]int{"Male": 1, "Female": 0}
	yesNoCodes  = map[string]int{"Yes": 1, "No": 0}

	categoricalCodes = map[string]map[string]int{
		constants.Gender:           genderCodes,
		constants.Comorbidity:      yesNoCodes,
		constants.DiabetesMellitus: yesNoCodes,
	}
)

// Value is one schema column. Categorical columns carry Code, all others Num.
type Value struct {
	Name        string
	Categorical bool
	Num         float64
	Code        int
}

// Float returns the column as a model input.
func (v Value) Float() float64 {
	if v.Categorical {
		return float64(v.Code)
	}
	return v.Num
}

type Default struct {
	Field  string `json:"field"`
	Reason Reason `json:"reason"`
}

// Record holds every column of constants.ModelFeatures, in order.
type Record struct {
	Values   []Value
	Defaults []Default
}

// FromRaw builds a complete record. Absent, unparsable and unrecognized
// values take the column default (0) and are listed in Defaults.
func FromRaw(raw fields.RawMap) Record {
	r := Record{Values: make([]Value, 0, len(constants.ModelFeatures()))}
	for _, name := range constants.ModelFeatures() {
		v := Value{Name: name, Categorical: constants.IsCategorical(name)}
		s, ok := raw[name]
		switch {
		case !ok:
			r.Defaults = append(r.Defaults, Default{Field: name, Reason: ReasonMissing})
		case v.Categorical:
			code, known := categoricalCodes[name][s]
			if !known {
				r.Defaults = append(r.Defaults, Default{Field: name, Reason: ReasonUnrecognized})
			}
			v.Code = code
		default:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				r.Defaults = append(r.Defaults, Default{Field: name, Reason: ReasonUnparsable})
				f = 0
			}
			v.Num = f
		}
		r.Values = append(r.Values, v)
	}
	return r
}

// Lookup returns the named column.
func (r Record) Lookup(name string) (Value, bool) {
	for _, v := range r.Values {
		if v.Name == name {
			return v, true
		}
	}
	return Value{}, false
}

func (r Record) Float(name string) float64 {
	v, _ := r.Lookup(name)
	return v.Float()
}

func (r Record) Int(name string) int {
	v, _ := r.Lookup(name)
	if v.Categorical {
		return v.Code
	}
	return int(v.Num)
}

// Defaulted reports whether the column took its default.
func (r Record) Defaulted(name string) bool {
	for _, d := range r.Defaults {
		if d.Field == name {
			return true
		}
	}
	return false
}

func (r Record) Columns() []string {
	out := make([]string, len(r.Values))
	for i, v := range r.Values {
		out[i] = v.Name
	}
	return out
}

func (r Record) Row() []float64 {
	out := make([]float64, len(r.Values))
	for i, v := range r.Values {
		out[i] = v.Float()
	}
	return out
}

// Frame is a single-row table in split orientation.
type Frame struct {
	Columns []string    `json:"columns"`
	Data    [][]float64 `json:"data"`
}

func (r Record) Frame() Frame {
	return Frame{Columns: r.Columns(), Data: [][]float64{r.Row()}}
}

// MarshalJSON writes the columns as an object in schema order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range r.Values {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(v.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if v.Categorical {
			buf.WriteString(strconv.Itoa(v.Code))
		} else {
			buf.WriteString(strconv.FormatFloat(v.Num, 'f', -1, 64))
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object produced by MarshalJSON. Columns missing from
// the object are zero; Defaults is left empty.
func (r *Record) UnmarshalJSON(b []byte) error {
	var m map[string]json.Number
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.Values = make([]Value, 0, len(constants.ModelFeatures()))
	r.Defaults = nil
	for _, name := range constants.ModelFeatures() {
		v := Value{Name: name, Categorical: constants.IsCategorical(name)}
		if n, ok := m[name]; ok {
			if v.Categorical {
				code, err := n.Int64()
				if err != nil {
					return fmt.Errorf("column %q: %w", name, err)
				}
				v.Code = int(code)
			} else {
				f, err := n.Float64()
				if err != nil {
					return fmt.Errorf("column %q: %w", name, err)
				}
				v.Num = f
			}
		}
		r.Values = append(r.Values, v)
	}
	return nil
}

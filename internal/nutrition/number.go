package nutrition

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a body measurement as clients send it: a JSON number, a numeric
// string, or nothing. Values that do not parse are kept as missing rather
// than rejected.
type Number struct {
	Value float64
	Valid bool
}

// N returns a valid Number.
func N(v float64) Number { return Number{Value: v, Valid: true} }

// Positive reports whether n holds a finite value greater than zero.
func (n Number) Positive() bool {
	return n.Valid && !math.IsNaN(n.Value) && !math.IsInf(n.Value, 0) && n.Value > 0
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*n = N(v)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	*n = N(v)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid || math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Ptr returns the value as a pointer suitable for nullable columns.
func (n Number) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// FromPtr is the inverse of Ptr.
func FromPtr(p *float64) Number {
	if p == nil {
		return Number{}
	}
	return N(*p)
}

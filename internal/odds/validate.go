// Package odds gates raw odds values into bettable prices and renders them in
// the display notations offered to users.
package odds

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Price is a validated decimal odds multiplier. Any value at or below 1 is
// locked; the zero value is Locked.
type Price float64

// Locked is the price of a selection that must not be offered.
const Locked Price = 0

// lockedLiterals are string placeholders feeds use for unavailable prices.
var lockedLiterals = map[string]bool{
	"":       true,
	"locked": true,
	"-":      true,
	"—":      true,
	"–":      true,
	"‒":      true,
	"―":      true,
	"n/a":    true,
}

// Validate classifies a raw odds value. It returns the parsed multiplier when
// it is finite and greater than 1 and Locked for everything else: nil, empty
// or placeholder strings, unparseable text, NaN, infinities and values <= 1.
// Validate(Validate(x)) == Validate(x).
func Validate(raw any) Price {
	var f float64
	switch v := raw.(type) {
	case nil:
		return Locked
	case Price:
		f = float64(v)
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case *float64:
		if v == nil {
			return Locked
		}
		f = *v
	case json.Number:
		return parseString(string(v))
	case string:
		return parseString(v)
	default:
		return Locked
	}
	return gate(f)
}

func parseString(s string) Price {
	s = strings.TrimSpace(s)
	if lockedLiterals[strings.ToLower(s)] {
		return Locked
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Locked
	}
	return gate(f)
}

func gate(f float64) Price {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 1 {
		return Locked
	}
	return Price(f)
}

// IsLocked reports whether the price must not be offered.
func (p Price) IsLocked() bool {
	return !(float64(p) > 1) || math.IsInf(float64(p), 0)
}

// Float returns the multiplier, or 0 when locked.
func (p Price) Float() float64 {
	if p.IsLocked() {
		return 0
	}
	return float64(p)
}

func (p Price) String() string {
	if p.IsLocked() {
		return "locked"
	}
	return strconv.FormatFloat(float64(p), 'f', -1, 64)
}

// MarshalJSON renders a locked price as the string "locked".
func (p Price) MarshalJSON() ([]byte, error) {
	if p.IsLocked() {
		return []byte(`"locked"`), nil
	}
	return []byte(strconv.FormatFloat(float64(p), 'f', -1, 64)), nil
}

// UnmarshalJSON accepts numbers, numeric strings and placeholders.
func (p *Price) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		*p = Locked
		return nil
	}
	*p = Validate(raw)
	return nil
}

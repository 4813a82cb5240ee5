package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// SelectionKey identifies one leg of a slip. Handicap participates in
// identity: a nil handicap equals only another nil handicap.
type SelectionKey struct {
	FixtureID int64   `json:"fixtureId"`
	Market    string  `json:"market"`
	Selection string  `json:"selection"`
	Handicap  *string `json:"handicap"`
}

// Equal reports whether two keys identify the same selection.
func (k SelectionKey) Equal(o SelectionKey) bool {
	if k.FixtureID != o.FixtureID || k.Market != o.Market || k.Selection != o.Selection {
		return false
	}
	if k.Handicap == nil || o.Handicap == nil {
		return k.Handicap == nil && o.Handicap == nil
	}
	return *k.Handicap == *o.Handicap
}

// MatchesTriple reports whether the key shares fixture, market and selection
// with the given triple, ignoring handicap.
func (k SelectionKey) MatchesTriple(fixtureID int64, market, selection string) bool {
	return k.FixtureID == fixtureID && k.Market == market && k.Selection == selection
}

// String renders the key in a form usable as a map key. A nil handicap and an
// empty handicap render differently.
func (k SelectionKey) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(k.FixtureID, 10))
	b.WriteByte('|')
	b.WriteString(k.Market)
	b.WriteByte('|')
	b.WriteString(k.Selection)
	b.WriteByte('|')
	if k.Handicap == nil {
		b.WriteString("~")
	} else {
		b.WriteString("=")
		b.WriteString(*k.Handicap)
	}
	return b.String()
}

// Selection is one leg of a parlay. Odd is always a valid multiplier (> 1)
// once the selection has entered a slip.
type Selection struct {
	FixtureID  int64     `json:"fixtureId"`
	Market     string    `json:"market"`
	Selection  string    `json:"selection"`
	Odd        float64   `json:"odd"`
	Handicap   *string   `json:"handicap"`
	HomeTeam   string    `json:"homeTeam,omitempty"`
	AwayTeam   string    `json:"awayTeam,omitempty"`
	LeagueName string    `json:"leagueName,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Key returns the selection's identity key.
func (s Selection) Key() SelectionKey {
	return SelectionKey{
		FixtureID: s.FixtureID,
		Market:    s.Market,
		Selection: s.Selection,
		Handicap:  s.Handicap,
	}
}

// CanonicalHandicap normalizes a handicap line so equal lines compare equal.
// Blank input becomes nil. Numeric lines are rewritten in their shortest
// decimal form ("2.50" and "+2.5" both become "2.5"). Other text, such as a
// split line "0,0.5", is kept trimmed.
func CanonicalHandicap(h *string) *string {
	if h == nil {
		return nil
	}
	v := strings.TrimSpace(*h)
	if v == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if f == 0 {
			f = 0 // drop the sign of -0
		}
		v = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return &v
}

// HandicapPtr is a convenience for building optional handicap values.
func HandicapPtr(v string) *string {
	return &v
}

// CloneSelections returns a deep copy of the slice, including handicap
// pointers, so callers cannot mutate store-owned data.
func CloneSelections(in []Selection) []Selection {
	if in == nil {
		return nil
	}
	out := make([]Selection, len(in))
	for i, s := range in {
		if s.Handicap != nil {
			h := *s.Handicap
			s.Handicap = &h
		}
		out[i] = s
	}
	return out
}

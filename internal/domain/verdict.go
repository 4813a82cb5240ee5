package domain

import "time"

// PriceChange reports a selection whose server price differs from the one
// held in the slip.
type PriceChange struct {
	SelectionKey
	OldOdd        float64 `json:"oldOdd"`
	NewOdd        float64 `json:"newOdd"`
	ChangePercent float64 `json:"changePercent"`
}

// IsIncrease reports whether the new price pays more than the old one.
func (c PriceChange) IsIncrease() bool {
	return c.NewOdd > c.OldOdd
}

// ClosedReason is the fixture-level reason a selection is no longer offered,
// when one can be derived.
type ClosedReason string

const (
	ClosedReasonNone      ClosedReason = ""
	ClosedReasonFinished  ClosedReason = "finished"
	ClosedReasonPostponed ClosedReason = "postponed"
	ClosedReasonCancelled ClosedReason = "cancelled"
	ClosedReasonSuspended ClosedReason = "suspended"
)

// ClosedSelection is a selection whose market or outcome is no longer offered.
type ClosedSelection struct {
	SelectionKey
	Reason  ClosedReason `json:"reason,omitempty"`
	Message string       `json:"message"`
}

// RejectedSelection is a selection provisionally locked after a critical
// in-play event. Market and Selection may be empty when the lock applies to the
// whole fixture.
type RejectedSelection struct {
	FixtureID int64      `json:"fixtureId"`
	Market    string     `json:"market,omitempty"`
	Selection string     `json:"selection,omitempty"`
	Handicap  *string    `json:"handicap,omitempty"`
	Reason    string     `json:"reason"`
	Message   string     `json:"message"`
	LockUntil *time.Time `json:"lockUntil"`
}

// Covers reports whether the rejection applies to the given selection key.
func (r RejectedSelection) Covers(k SelectionKey) bool {
	if r.FixtureID != k.FixtureID {
		return false
	}
	if r.Market == "" {
		return true
	}
	if r.Market != k.Market {
		return false
	}
	if r.Selection == "" {
		return true
	}
	if r.Selection != k.Selection {
		return false
	}
	if r.Handicap == nil {
		return true
	}
	return k.Handicap != nil && *k.Handicap == *r.Handicap
}

// RetryAt returns when the caller may retry validation. The zero time means
// no lock deadline was given.
func (r RejectedSelection) RetryAt() time.Time {
	if r.LockUntil == nil {
		return time.Time{}
	}
	return *r.LockUntil
}

// SelectionError reports a fixture the backend could not evaluate.
type SelectionError struct {
	FixtureID int64  `json:"fixtureId"`
	Error     string `json:"error"`
}

// Verdict is the result of one validation round.
type Verdict struct {
	Valid     bool                 `json:"valid"`
	Message   string               `json:"message"`
	Changes   []PriceChange        `json:"changes"`
	Closed    []ClosedSelection    `json:"closed"`
	Rejected  []RejectedSelection  `json:"rejected"`
	Errors    []SelectionError     `json:"errors"`
	MatchInfo map[int64]*MatchInfo `json:"matchInfo,omitempty"`
}

// AllCurrent reports a clean verdict: valid with nothing to review.
func (v Verdict) AllCurrent() bool {
	return v.Valid && len(v.Changes) == 0 && len(v.Closed) == 0 &&
		len(v.Rejected) == 0 && len(v.Errors) == 0
}

// Outcome classifies one selection within a verdict.
type Outcome string

const (
	OutcomeUnchanged    Outcome = "unchanged"
	OutcomePriceChanged Outcome = "price_changed"
	OutcomeClosed       Outcome = "closed"
	OutcomeRejected     Outcome = "rejected"
	OutcomeError        Outcome = "error"
)

package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/odds"
)

const (
	lockedPriceMessage = "Price is no longer available"
	closedMessage      = "Selection is no longer available"
)

// SelectionReview is the verdict for one submitted selection.
type SelectionReview struct {
	Selection domain.Selection          `json:"selection"`
	Outcome   domain.Outcome            `json:"outcome"`
	Change    *domain.PriceChange       `json:"change,omitempty"`
	Closed    *domain.ClosedSelection   `json:"closed,omitempty"`
	Rejected  *domain.RejectedSelection `json:"rejected,omitempty"`
	Error     string                    `json:"error,omitempty"`
	MatchInfo *domain.MatchInfo         `json:"matchInfo,omitempty"`
}

// Review is a normalized verdict awaiting the user's decision. Every
// submitted selection appears in Selections with exactly one outcome.
type Review struct {
	Verdict     domain.Verdict    `json:"verdict"`
	Selections  []SelectionReview `json:"selections"`
	AllCurrent  bool              `json:"allCurrent"`
	ValidatedAt time.Time         `json:"validatedAt"`
}

// class ranks outcomes; a selection keeps its highest-ranked class.
type class int

const (
	classUnchanged class = iota
	classChanged
	classError
	classRejected
	classClosed
)

type classified struct {
	class    class
	change   *domain.PriceChange
	closed   *domain.ClosedSelection
	rejected *domain.RejectedSelection
	err      string
}

func (c *classified) raise(to class) bool {
	if to <= c.class {
		return false
	}
	c.class = to
	return true
}

// normalize places every submitted selection in at most one class, with
// precedence closed > rejected > error > changed. A change whose new price is
// locked becomes a closed entry. Closed entries without a reason get one from
// the fixture's match status when it is derivable.
func normalize(bets []domain.Selection, v domain.Verdict, info map[int64]*domain.MatchInfo) *Review {
	cls := make([]classified, len(bets))

	for _, ch := range v.Changes {
		i := indexOf(bets, ch.SelectionKey)
		if i < 0 {
			continue
		}
		newPrice := odds.Validate(ch.NewOdd)
		if newPrice.IsLocked() {
			if cls[i].raise(classClosed) {
				cls[i].closed = &domain.ClosedSelection{
					SelectionKey: bets[i].Key(),
					Reason:       fixtureReason(info, bets[i].FixtureID),
					Message:      lockedPriceMessage,
				}
			}
			continue
		}
		if newPrice.Float() == bets[i].Odd {
			continue
		}
		if cls[i].raise(classChanged) {
			cls[i].change = priceChange(bets[i], newPrice.Float(), ch.ChangePercent)
		}
	}

	for _, e := range v.Errors {
		for i := range bets {
			if bets[i].FixtureID == e.FixtureID && cls[i].raise(classError) {
				cls[i].err = e.Error
			}
		}
	}

	for _, r := range v.Rejected {
		for i := range bets {
			if r.Covers(bets[i].Key()) && cls[i].raise(classRejected) {
				rj := r
				cls[i].rejected = &rj
			}
		}
	}

	for _, c := range v.Closed {
		for i := range bets {
			if !closedCovers(c, bets[i].Key()) || !cls[i].raise(classClosed) {
				continue
			}
			reason := c.Reason
			if reason == domain.ClosedReasonNone {
				reason = fixtureReason(info, bets[i].FixtureID)
			}
			msg := c.Message
			if msg == "" {
				msg = closedMessage
			}
			cls[i].closed = &domain.ClosedSelection{SelectionKey: bets[i].Key(), Reason: reason, Message: msg}
		}
	}

	out := &Review{
		Verdict: domain.Verdict{
			Valid:     v.Valid,
			Message:   v.Message,
			Changes:   []domain.PriceChange{},
			Closed:    []domain.ClosedSelection{},
			Rejected:  []domain.RejectedSelection{},
			Errors:    []domain.SelectionError{},
			MatchInfo: info,
		},
		Selections: make([]SelectionReview, len(bets)),
	}

	rejectedSeen := map[int]bool{}
	errorSeen := map[int64]bool{}
	for i, b := range bets {
		sr := SelectionReview{Selection: b, Outcome: domain.OutcomeUnchanged}
		if mi, ok := info[b.FixtureID]; ok && mi != nil {
			cp := *mi
			sr.MatchInfo = &cp
		}
		c := cls[i]
		switch c.class {
		case classChanged:
			sr.Outcome = domain.OutcomePriceChanged
			sr.Change = c.change
			out.Verdict.Changes = append(out.Verdict.Changes, *c.change)
		case classError:
			sr.Outcome = domain.OutcomeError
			sr.Error = c.err
			if !errorSeen[b.FixtureID] {
				errorSeen[b.FixtureID] = true
				out.Verdict.Errors = append(out.Verdict.Errors, domain.SelectionError{FixtureID: b.FixtureID, Error: c.err})
			}
		case classRejected:
			sr.Outcome = domain.OutcomeRejected
			sr.Rejected = c.rejected
			if idx := rejectedIndex(v.Rejected, c.rejected); !rejectedSeen[idx] {
				rejectedSeen[idx] = true
				out.Verdict.Rejected = append(out.Verdict.Rejected, *c.rejected)
			}
		case classClosed:
			sr.Outcome = domain.OutcomeClosed
			sr.Closed = c.closed
			out.Verdict.Closed = append(out.Verdict.Closed, *c.closed)
		}
		out.Selections[i] = sr
	}

	out.AllCurrent = out.Verdict.AllCurrent()
	return out
}

func indexOf(bets []domain.Selection, k domain.SelectionKey) int {
	for i := range bets {
		if bets[i].Key().Equal(k) {
			return i
		}
	}
	return -1
}

// closedCovers matches a closed entry against a key. Empty market or
// selection widen the match; a nil handicap matches every line.
func closedCovers(c domain.ClosedSelection, k domain.SelectionKey) bool {
	return domain.RejectedSelection{
		FixtureID: c.FixtureID,
		Market:    c.Market,
		Selection: c.Selection,
		Handicap:  c.Handicap,
	}.Covers(k)
}

func rejectedIndex(all []domain.RejectedSelection, r *domain.RejectedSelection) int {
	for i := range all {
		if all[i].FixtureID == r.FixtureID && all[i].Market == r.Market &&
			all[i].Selection == r.Selection && all[i].Reason == r.Reason &&
			sameHandicap(all[i].Handicap, r.Handicap) {
			return i
		}
	}
	return -1
}

func sameHandicap(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func fixtureReason(info map[int64]*domain.MatchInfo, fixtureID int64) domain.ClosedReason {
	if mi := info[fixtureID]; mi != nil {
		return mi.ClosedReason()
	}
	return domain.ClosedReasonNone
}

// priceChange rebuilds a change against the held selection. The percent is
// recomputed when the backend did not send one.
func priceChange(b domain.Selection, newOdd, percent float64) *domain.PriceChange {
	if percent == 0 {
		oldD := decimal.NewFromFloat(b.Odd)
		percent = decimal.NewFromFloat(newOdd).Sub(oldD).
			Div(oldD).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return &domain.PriceChange{
		SelectionKey:  b.Key(),
		OldOdd:        b.Odd,
		NewOdd:        newOdd,
		ChangePercent: percent,
	}
}

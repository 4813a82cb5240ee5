package slipapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/odds"
)

// envelope wraps every backend response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type betsRequest struct {
	Bets []apiBet `json:"bets"`
}

// lineValue is a handicap line that the backend may send as a string or a
// number. Numeric lines are stored in canonical form, so 2.50 and "2.5"
// decode to the same value.
type lineValue string

func (l *lineValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	if c := domain.CanonicalHandicap(&s); c != nil {
		*l = lineValue(*c)
	} else {
		*l = ""
	}
	return nil
}

func handicapToWire(h *string) *lineValue {
	c := domain.CanonicalHandicap(h)
	if c == nil {
		return nil
	}
	v := lineValue(*c)
	return &v
}

func handicapFromWire(l *lineValue) *string {
	if l == nil {
		return nil
	}
	s := string(*l)
	return domain.CanonicalHandicap(&s)
}

type apiBet struct {
	FixtureID  int64      `json:"fixtureId"`
	Market     string     `json:"market"`
	Selection  string     `json:"selection"`
	Odd        odds.Price `json:"odd"`
	Handicap   *lineValue `json:"handicap"`
	HomeTeam   string     `json:"homeTeam,omitempty"`
	AwayTeam   string     `json:"awayTeam,omitempty"`
	LeagueName string     `json:"leagueName,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

func toAPIBets(in []domain.Selection) []apiBet {
	out := make([]apiBet, 0, len(in))
	for _, s := range in {
		b := apiBet{
			FixtureID:  s.FixtureID,
			Market:     s.Market,
			Selection:  s.Selection,
			Odd:        odds.Validate(s.Odd),
			Handicap:   handicapToWire(s.Handicap),
			HomeTeam:   s.HomeTeam,
			AwayTeam:   s.AwayTeam,
			LeagueName: s.LeagueName,
		}
		if !s.Timestamp.IsZero() {
			ts := s.Timestamp
			b.Timestamp = &ts
		}
		out = append(out, b)
	}
	return out
}

func (b apiBet) toDomain() domain.Selection {
	s := domain.Selection{
		FixtureID:  b.FixtureID,
		Market:     b.Market,
		Selection:  b.Selection,
		Odd:        b.Odd.Float(),
		Handicap:   handicapFromWire(b.Handicap),
		HomeTeam:   b.HomeTeam,
		AwayTeam:   b.AwayTeam,
		LeagueName: b.LeagueName,
	}
	if b.Timestamp != nil {
		s.Timestamp = *b.Timestamp
	}
	return s
}

type apiReceipt struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (r apiReceipt) toDomain() domain.ShareReceipt {
	return domain.ShareReceipt{Code: r.Code, CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt}
}

type apiSharedSlip struct {
	Code      string    `json:"code"`
	Bets      []apiBet  `json:"bets"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s apiSharedSlip) toDomain() domain.SharedSlip {
	bets := make([]domain.Selection, 0, len(s.Bets))
	for _, b := range s.Bets {
		bets = append(bets, b.toDomain())
	}
	status := domain.SharedSlipStatus(strings.ToLower(strings.TrimSpace(s.Status)))
	if status == "" {
		status = domain.SharedSlipActive
	}
	return domain.SharedSlip{
		Code:      s.Code,
		Bets:      bets,
		Status:    status,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

type apiChange struct {
	FixtureID     int64      `json:"fixtureId"`
	Market        string     `json:"market"`
	Selection     string     `json:"selection"`
	Handicap      *lineValue `json:"handicap"`
	OldOdd        odds.Price `json:"oldOdd"`
	NewOdd        odds.Price `json:"newOdd"`
	ChangePercent float64    `json:"changePercent"`
}

type apiClosed struct {
	FixtureID int64      `json:"fixtureId"`
	Market    string     `json:"market"`
	Selection string     `json:"selection"`
	Handicap  *lineValue `json:"handicap"`
	Reason    string     `json:"reason"`
	Message   string     `json:"message"`
}

type apiRejected struct {
	FixtureID int64      `json:"fixtureId"`
	Market    string     `json:"market"`
	Selection string     `json:"selection"`
	Handicap  *lineValue `json:"handicap"`
	Reason    string     `json:"reason"`
	Message   string     `json:"message"`
	LockUntil *time.Time `json:"lockUntil"`
}

type apiVerdict struct {
	Valid     bool                        `json:"valid"`
	Message   string                      `json:"message"`
	Changes   []apiChange                 `json:"changes"`
	Closed    []apiClosed                 `json:"closed"`
	Rejected  []apiRejected               `json:"rejected"`
	Errors    []domain.SelectionError     `json:"errors"`
	MatchInfo map[int64]*domain.MatchInfo `json:"matchInfo"`
}

// toDomain converts the wire verdict. A locked new price becomes NewOdd 0;
// classification is left to the caller.
func (v apiVerdict) toDomain() domain.Verdict {
	out := domain.Verdict{
		Valid:   v.Valid,
		Message: v.Message,
		Errors:  v.Errors,
	}
	for _, c := range v.Changes {
		out.Changes = append(out.Changes, domain.PriceChange{
			SelectionKey: domain.SelectionKey{
				FixtureID: c.FixtureID,
				Market:    c.Market,
				Selection: c.Selection,
				Handicap:  handicapFromWire(c.Handicap),
			},
			OldOdd:        c.OldOdd.Float(),
			NewOdd:        c.NewOdd.Float(),
			ChangePercent: c.ChangePercent,
		})
	}
	for _, c := range v.Closed {
		reason, message := closedReason(c.Reason), c.Message
		if reason == domain.ClosedReasonNone && message == "" {
			message = c.Reason
		}
		out.Closed = append(out.Closed, domain.ClosedSelection{
			SelectionKey: domain.SelectionKey{
				FixtureID: c.FixtureID,
				Market:    c.Market,
				Selection: c.Selection,
				Handicap:  handicapFromWire(c.Handicap),
			},
			Reason:  reason,
			Message: message,
		})
	}
	for _, r := range v.Rejected {
		out.Rejected = append(out.Rejected, domain.RejectedSelection{
			FixtureID: r.FixtureID,
			Market:    r.Market,
			Selection: r.Selection,
			Handicap:  handicapFromWire(r.Handicap),
			Reason:    r.Reason,
			Message:   r.Message,
			LockUntil: r.LockUntil,
		})
	}
	if len(v.MatchInfo) > 0 {
		out.MatchInfo = make(map[int64]*domain.MatchInfo, len(v.MatchInfo))
		for id, mi := range v.MatchInfo {
			if mi != nil {
				mi.FixtureID = id
			}
			out.MatchInfo[id] = mi
		}
	}
	return out
}

func closedReason(s string) domain.ClosedReason {
	switch r := domain.ClosedReason(strings.ToLower(strings.TrimSpace(s))); r {
	case domain.ClosedReasonFinished, domain.ClosedReasonPostponed,
		domain.ClosedReasonCancelled, domain.ClosedReasonSuspended:
		return r
	default:
		return domain.ClosedReasonNone
	}
}

// apiFixture is the fixture document served by /fixtures/{id}.
type apiFixture struct {
	Fixture struct {
		ID     int64 `json:"id"`
		Status struct {
			Short   string `json:"short"`
			Long    string `json:"long"`
			Elapsed *int   `json:"elapsed"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"league"`
	Teams struct {
		Home domain.Team `json:"home"`
		Away domain.Team `json:"away"`
	} `json:"teams"`
	Goals domain.Score `json:"goals"`
}

func (f apiFixture) toDomain() domain.MatchInfo {
	status := domain.MatchStatus{
		Short:   f.Fixture.Status.Short,
		Long:    f.Fixture.Status.Long,
		Elapsed: f.Fixture.Status.Elapsed,
	}
	return domain.MatchInfo{
		FixtureID: f.Fixture.ID,
		Live:      domain.IsLiveStatus(status.Short),
		Status:    status,
		Score:     f.Goals,
		HomeTeam:  f.Teams.Home,
		AwayTeam:  f.Teams.Away,
		League:    domain.League{Name: f.League.Name, Country: f.League.Country},
	}
}

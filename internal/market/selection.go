package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/odds"
)

// Pick is a user's click on an odds button, before canonicalization.
type Pick struct {
	FixtureID  int64   `json:"fixtureId" validate:"required,gt=0"`
	Market     string  `json:"market" validate:"required,max=128"`
	Selection  string  `json:"selection" validate:"required,max=128"`
	Odd        any     `json:"odd" validate:"required"`
	Handicap   *string `json:"handicap" validate:"omitempty,max=16"`
	HomeTeam   string  `json:"homeTeam" validate:"max=128"`
	AwayTeam   string  `json:"awayTeam" validate:"max=128"`
	LeagueName string  `json:"leagueName" validate:"max=128"`
}

// NewSelection builds a slip selection from a pick. Market and selection codes
// are mapped to their canonical names; names outside the table pass through
// unchanged. The odd goes through odds.Validate and a locked price is refused.
// An empty or blank handicap is treated as no handicap.
func NewSelection(p Pick, now time.Time) (domain.Selection, error) {
	if p.FixtureID <= 0 {
		return domain.Selection{}, fmt.Errorf("market: fixture id %d: %w", p.FixtureID, domain.ErrInvalidPick)
	}
	mkt := strings.TrimSpace(p.Market)
	sel := strings.TrimSpace(p.Selection)
	if mkt == "" || sel == "" {
		return domain.Selection{}, fmt.Errorf("market: empty market or selection: %w", domain.ErrInvalidPick)
	}

	price := odds.Validate(p.Odd)
	if price.IsLocked() {
		return domain.Selection{}, fmt.Errorf("market: %s/%s on fixture %d: %w", mkt, sel, p.FixtureID, domain.ErrLockedPrice)
	}

	if name, ok := CanonicalSelection(mkt, sel); ok {
		sel = name
	}
	if name, ok := CanonicalMarket(mkt); ok {
		mkt = name
	}

	return domain.Selection{
		FixtureID:  p.FixtureID,
		Market:     mkt,
		Selection:  sel,
		Odd:        price.Float(),
		Handicap:   domain.CanonicalHandicap(p.Handicap),
		HomeTeam:   p.HomeTeam,
		AwayTeam:   p.AwayTeam,
		LeagueName: p.LeagueName,
		Timestamp:  now.UTC(),
	}, nil
}


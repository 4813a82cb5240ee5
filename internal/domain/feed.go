package domain

import "time"

// FixtureEventType names a live feed notification.
type FixtureEventType string

const (
	EventMatchStarted FixtureEventType = "match_started"
	EventOddsChange   FixtureEventType = "odds_change"
)

// FixtureEvent is a push notification from the live data feed.
type FixtureEvent struct {
	Type      FixtureEventType `json:"type"`
	FixtureID int64            `json:"fixtureId"`
	At        time.Time        `json:"at"`
}

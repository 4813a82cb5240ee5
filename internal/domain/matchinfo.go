package domain

// MatchStatus carries the fixture status codes and elapsed minutes.
type MatchStatus struct {
	Short   string `json:"short"`
	Long    string `json:"long"`
	Elapsed *int   `json:"elapsed"`
}

// Score is the current score; nil goals mean not started.
type Score struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

// Team is a display-only team reference.
type Team struct {
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

// League is a display-only league reference.
type League struct {
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
}

// MatchInfo is a denormalized per-fixture display snapshot.
type MatchInfo struct {
	FixtureID int64       `json:"fixtureId"`
	Live      bool        `json:"live"`
	Status    MatchStatus `json:"status"`
	Score     Score       `json:"score"`
	HomeTeam  Team        `json:"homeTeam"`
	AwayTeam  Team        `json:"awayTeam"`
	League    League      `json:"league"`
}

// ClosedReason derives a fixture-level closed reason from the status code.
func (m MatchInfo) ClosedReason() ClosedReason {
	switch m.Status.Short {
	case "FT", "AET", "PEN":
		return ClosedReasonFinished
	case "PST":
		return ClosedReasonPostponed
	case "CANC", "ABD", "AWD", "WO":
		return ClosedReasonCancelled
	case "SUSP", "INT":
		return ClosedReasonSuspended
	default:
		return ClosedReasonNone
	}
}

// IsLiveStatus reports whether a short status code denotes an in-play fixture.
func IsLiveStatus(short string) bool {
	switch short {
	case "1H", "HT", "2H", "ET", "BT", "P", "LIVE":
		return true
	default:
		return false
	}
}

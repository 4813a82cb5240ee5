// Package market owns the canonical market and selection vocabulary, builds
// slip selections from user picks, and normalizes odds payloads.
package market

import "strings"

// outcomeDef pairs an internal short code with the backend-canonical name.
type outcomeDef struct {
	Code string
	Name string
}

// marketDef describes one market known to the front end.
//
// Code is the short code used by odds buttons; Name is the name the slip
// backend expects in save/validate requests.
type marketDef struct {
	Code        string
	Name        string
	Handicapped bool
	Outcomes    []outcomeDef
}

var (
	homeDrawAway = []outcomeDef{{"1", "Home"}, {"x", "Draw"}, {"2", "Away"}}
	overUnder    = []outcomeDef{{"over", "Over"}, {"under", "Under"}}
	yesNo        = []outcomeDef{{"yes", "Yes"}, {"no", "No"}}
)

var markets = []marketDef{
	{Code: "1x2", Name: "Match Winner", Outcomes: homeDrawAway},
	{Code: "ht", Name: "First Half Winner", Outcomes: homeDrawAway},
	{Code: "ou", Name: "Goals Over/Under", Handicapped: true, Outcomes: overUnder},
	{Code: "ou_1h", Name: "Goals Over/Under First Half", Handicapped: true, Outcomes: overUnder},
	{Code: "btts", Name: "Both Teams Score", Outcomes: yesNo},
	{Code: "dc", Name: "Double Chance", Outcomes: []outcomeDef{
		{"1x", "Home/Draw"}, {"12", "Home/Away"}, {"x2", "Draw/Away"},
	}},
	{Code: "ah", Name: "Asian Handicap", Handicapped: true, Outcomes: []outcomeDef{
		{"1", "Home"}, {"2", "Away"},
	}},
	{Code: "dnb", Name: "Draw No Bet", Outcomes: []outcomeDef{{"1", "Home"}, {"2", "Away"}}},
}

var (
	marketByCode = map[string]*marketDef{}
	marketByName = map[string]*marketDef{}
)

func init() {
	for i := range markets {
		m := &markets[i]
		marketByCode[fold(m.Code)] = m
		marketByName[fold(m.Name)] = m
	}
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// lookup resolves a market by short code first, then by canonical name.
func lookup(codeOrName string) (*marketDef, bool) {
	k := fold(codeOrName)
	if m, ok := marketByCode[k]; ok {
		return m, true
	}
	m, ok := marketByName[k]
	return m, ok
}

// CanonicalMarket returns the backend-canonical name for a market code or name.
func CanonicalMarket(codeOrName string) (string, bool) {
	m, ok := lookup(codeOrName)
	if !ok {
		return "", false
	}
	return m.Name, true
}

// MarketCode returns the short code for a market code or canonical name.
func MarketCode(codeOrName string) (string, bool) {
	m, ok := lookup(codeOrName)
	if !ok {
		return "", false
	}
	return m.Code, true
}

// IsHandicapped reports whether selections in the market carry a line.
func IsHandicapped(codeOrName string) bool {
	m, ok := lookup(codeOrName)
	return ok && m.Handicapped
}

// CanonicalSelection resolves a selection code or name within a market.
func CanonicalSelection(market, codeOrName string) (string, bool) {
	o, ok := lookupOutcome(market, codeOrName)
	if !ok {
		return "", false
	}
	return o.Name, true
}

// SelectionCode returns the short code of a selection within a market.
func SelectionCode(market, codeOrName string) (string, bool) {
	o, ok := lookupOutcome(market, codeOrName)
	if !ok {
		return "", false
	}
	return o.Code, true
}

func lookupOutcome(market, codeOrName string) (outcomeDef, bool) {
	m, ok := lookup(market)
	if !ok {
		return outcomeDef{}, false
	}
	k := fold(codeOrName)
	for _, o := range m.Outcomes {
		if fold(o.Code) == k {
			return o, true
		}
	}
	for _, o := range m.Outcomes {
		if fold(o.Name) == k {
			return o, true
		}
	}
	return outcomeDef{}, false
}

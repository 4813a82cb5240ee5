package market

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/alanyoungcy/betslip/internal/odds"
)

// Market is the canonical internal shape of one market's prices.
type Market struct {
	Name     string    `json:"name"`
	Outcomes []Outcome `json:"outcomes"`
}

// Outcome is one priced selection of a market. Price may be locked.
type Outcome struct {
	Selection string     `json:"selection"`
	Handicap  *string    `json:"handicap"`
	Price     odds.Price `json:"odd"`
}

// ErrUnknownShape is returned when an odds payload matches no accepted shape.
var ErrUnknownShape = errors.New("market: unrecognized odds payload shape")

// shape tags the payload variants the odds feed is known to send.
type shape int

const (
	shapeUnknown       shape = iota
	shapeMarketList          // [{name, values}]
	shapeBookmakerList       // [{bookmaker: {bets}}]
	shapeFixtureList         // [{bookmakers: [{bets}]}]
	shapeBookmaker           // {bookmaker: {bets}}
	shapeBookmakers          // {bookmakers: [{bets}]}
	shapeOdds                // {odds: [{name, values}]}
	shapeBets                // {bets: [{name, values}]}
)

type wireValue struct {
	Value    any        `json:"value"`
	Odd      odds.Price `json:"odd"`
	Handicap any        `json:"handicap"`
}

type wireBet struct {
	Name   string      `json:"name"`
	Values []wireValue `json:"values"`
}

type wireBookmaker struct {
	Bets []wireBet `json:"bets"`
}

// ParseOdds normalizes any accepted odds payload into a market list. It is the
// only place that knows about payload variants.
func ParseOdds(raw []byte) ([]Market, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Market{}, nil
	}

	s, err := detectShape(raw)
	if err != nil {
		return nil, err
	}

	var bets []wireBet
	switch s {
	case shapeMarketList:
		err = json.Unmarshal(raw, &bets)
	case shapeBookmakerList:
		var v []struct {
			Bookmaker wireBookmaker `json:"bookmaker"`
		}
		if err = json.Unmarshal(raw, &v); err == nil {
			bm := make([]wireBookmaker, 0, len(v))
			for _, e := range v {
				bm = append(bm, e.Bookmaker)
			}
			bets = firstWithBets(bm)
		}
	case shapeFixtureList:
		var v []struct {
			Bookmakers []wireBookmaker `json:"bookmakers"`
		}
		if err = json.Unmarshal(raw, &v); err == nil {
			for _, e := range v {
				if bets = firstWithBets(e.Bookmakers); len(bets) > 0 {
					break
				}
			}
		}
	case shapeBookmaker:
		var v struct {
			Bookmaker wireBookmaker `json:"bookmaker"`
		}
		err = json.Unmarshal(raw, &v)
		bets = v.Bookmaker.Bets
	case shapeBookmakers:
		var v struct {
			Bookmakers []wireBookmaker `json:"bookmakers"`
		}
		err = json.Unmarshal(raw, &v)
		bets = firstWithBets(v.Bookmakers)
	case shapeOdds:
		var v struct {
			Odds []wireBet `json:"odds"`
		}
		err = json.Unmarshal(raw, &v)
		bets = v.Odds
	case shapeBets:
		var v struct {
			Bets []wireBet `json:"bets"`
		}
		err = json.Unmarshal(raw, &v)
		bets = v.Bets
	}
	if err != nil {
		return nil, fmt.Errorf("market: decode odds payload: %w", err)
	}

	return normalize(bets), nil
}

// detectShape inspects the top-level JSON structure to pick a variant.
func detectShape(raw []byte) (shape, error) {
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return shapeUnknown, fmt.Errorf("market: decode odds payload: %w", err)
		}
		if len(items) == 0 {
			return shapeMarketList, nil
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(items[0], &fields); err != nil {
			return shapeUnknown, ErrUnknownShape
		}
		switch {
		case fields["bookmaker"] != nil:
			return shapeBookmakerList, nil
		case fields["bookmakers"] != nil:
			return shapeFixtureList, nil
		case fields["values"] != nil || fields["name"] != nil:
			return shapeMarketList, nil
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return shapeUnknown, fmt.Errorf("market: decode odds payload: %w", err)
		}
		switch {
		case fields["bookmaker"] != nil:
			return shapeBookmaker, nil
		case fields["bookmakers"] != nil:
			return shapeBookmakers, nil
		case fields["odds"] != nil:
			return shapeOdds, nil
		case fields["bets"] != nil:
			return shapeBets, nil
		}
	}
	return shapeUnknown, ErrUnknownShape
}

func firstWithBets(bms []wireBookmaker) []wireBet {
	for _, bm := range bms {
		if len(bm.Bets) > 0 {
			return bm.Bets
		}
	}
	return nil
}

func normalize(bets []wireBet) []Market {
	out := make([]Market, 0, len(bets))
	for _, b := range bets {
		name := strings.TrimSpace(b.Name)
		if canonical, ok := CanonicalMarket(name); ok {
			name = canonical
		}
		m := Market{Name: name, Outcomes: make([]Outcome, 0, len(b.Values))}
		for _, v := range b.Values {
			m.Outcomes = append(m.Outcomes, normalizeOutcome(name, v))
		}
		out = append(out, m)
	}
	return out
}

// lineSuffix matches a trailing handicap line such as "Over 2.5" or "Home -1".
var lineSuffix = regexp.MustCompile(`^(.*\S)\s+([+-]?\d+(?:\.\d+)?)$`)

func normalizeOutcome(marketName string, v wireValue) Outcome {
	label := strings.TrimSpace(scalarString(v.Value))
	handicap := strings.TrimSpace(scalarString(v.Handicap))

	if handicap == "" {
		if m := lineSuffix.FindStringSubmatch(label); m != nil {
			label, handicap = m[1], m[2]
		}
	}
	if canonical, ok := CanonicalSelection(marketName, label); ok {
		label = canonical
	}

	o := Outcome{Selection: label, Price: v.Odd}
	if handicap != "" {
		o.Handicap = &handicap
	}
	return o
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

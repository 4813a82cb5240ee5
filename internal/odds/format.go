package odds

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Notation is a display format for decimal odds.
type Notation string

const (
	NotationDecimal    Notation = "decimal"
	NotationFractional Notation = "fractional"
	NotationAmerican   Notation = "american"
	NotationHongKong   Notation = "hongkong"
	NotationMalaysian  Notation = "malaysian"
	NotationIndonesian Notation = "indonesian"
)

// LockedDisplay is shown in place of a locked price.
const LockedDisplay = "-"

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Notations lists every supported notation.
func Notations() []Notation {
	return []Notation{
		NotationDecimal, NotationFractional, NotationAmerican,
		NotationHongKong, NotationMalaysian, NotationIndonesian,
	}
}

// ParseNotation resolves a notation name, case-insensitively.
func ParseNotation(s string) (Notation, error) {
	n := Notation(strings.ToLower(strings.TrimSpace(s)))
	if n == "" {
		return NotationDecimal, nil
	}
	for _, known := range Notations() {
		if n == known {
			return n, nil
		}
	}
	if n == "hk" {
		return NotationHongKong, nil
	}
	return "", fmt.Errorf("odds: unknown notation %q", s)
}

// Format renders a raw odds value in the given notation. Locked values render
// as LockedDisplay. In the Malaysian and Indonesian notations a price of
// exactly 2.0 is the boundary between the positive and negative branches and
// renders as "1.00".
func Format(raw any, n Notation) string {
	p := Validate(raw)
	if p.IsLocked() {
		return LockedDisplay
	}
	d := decimal.NewFromFloat(p.Float())
	profit := d.Sub(one)

	switch n {
	case NotationFractional:
		return fraction(profit)
	case NotationAmerican:
		if d.GreaterThanOrEqual(two) {
			return "+" + profit.Mul(hundred).Round(0).String()
		}
		return hundred.Div(profit).Round(0).Neg().String()
	case NotationHongKong:
		return profit.StringFixed(2)
	case NotationMalaysian:
		if d.LessThanOrEqual(two) {
			return profit.StringFixed(2)
		}
		return one.Div(profit).Neg().StringFixed(2)
	case NotationIndonesian:
		if d.GreaterThanOrEqual(two) {
			return profit.StringFixed(2)
		}
		return one.Div(profit).Neg().StringFixed(2)
	default:
		return d.StringFixed(2)
	}
}

// fraction renders profit as a reduced fraction of hundredths.
func fraction(profit decimal.Decimal) string {
	num := profit.Mul(hundred).Round(0).IntPart()
	den := int64(100)
	if num <= 0 {
		return LockedDisplay
	}
	g := gcd(num, den)
	return fmt.Sprintf("%d/%d", num/g, den/g)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

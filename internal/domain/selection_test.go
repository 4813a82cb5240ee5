package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalHandicap(t *testing.T) {
	tests := []struct {
		name string
		in   *string
		want *string
	}{
		{"nil", nil, nil},
		{"blank", HandicapPtr("   "), nil},
		{"trailing zero", HandicapPtr("2.50"), HandicapPtr("2.5")},
		{"explicit plus", HandicapPtr("+1.25"), HandicapPtr("1.25")},
		{"negative", HandicapPtr(" -0.750 "), HandicapPtr("-0.75")},
		{"whole number", HandicapPtr("1.0"), HandicapPtr("1")},
		{"negative zero", HandicapPtr("-0"), HandicapPtr("0")},
		{"split line kept", HandicapPtr("0,0.5"), HandicapPtr("0,0.5")},
		{"text kept", HandicapPtr(" NaN "), HandicapPtr("NaN")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalHandicap(tt.in))
		})
	}
}

func TestSelectionKeyEqualAfterCanonicalization(t *testing.T) {
	a := SelectionKey{FixtureID: 1, Market: "Goals Over/Under", Selection: "Over", Handicap: CanonicalHandicap(HandicapPtr("2.50"))}
	b := SelectionKey{FixtureID: 1, Market: "Goals Over/Under", Selection: "Over", Handicap: CanonicalHandicap(HandicapPtr("2.5"))}
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.String(), b.String())

	b.Handicap = nil
	assert.False(t, a.Equal(b))
}

package domain

import "time"

// SlipStatus is the coarse state of the slip as seen by the UI.
type SlipStatus string

const (
	SlipStatusActive  SlipStatus = "active"
	SlipStatusExpired SlipStatus = "expired"
	SlipStatusLoading SlipStatus = "loading"
	SlipStatusError   SlipStatus = "error"
)

// Snapshot is a read-only view of the slip with its derived aggregates.
type Snapshot struct {
	Selections   []Selection `json:"selections"`
	Stake        float64     `json:"stake"`
	ShareCode    *string     `json:"shareCode"`
	Status       SlipStatus  `json:"status"`
	TotalOdds    float64     `json:"totalOdds"`
	PotentialWin float64     `json:"potentialWin"`
}

// ChangeKind names the store operation that produced a SlipChange.
type ChangeKind string

const (
	ChangeAdd       ChangeKind = "add"
	ChangeRemove    ChangeKind = "remove"
	ChangeClear     ChangeKind = "clear"
	ChangeStake     ChangeKind = "stake"
	ChangeShareCode ChangeKind = "share_code"
	ChangeStatus    ChangeKind = "status"
	ChangeLoad      ChangeKind = "load"
	ChangeOdds      ChangeKind = "odds"
)

// EditsSelections reports whether the change altered which selections are in
// the slip (as opposed to prices, stake or metadata).
func (k ChangeKind) EditsSelections() bool {
	switch k {
	case ChangeAdd, ChangeRemove, ChangeClear, ChangeLoad:
		return true
	default:
		return false
	}
}

// SlipChange is delivered to store observers after every mutation.
type SlipChange struct {
	Kind     ChangeKind
	Snapshot Snapshot
}

// ShareReceipt is returned by the backend when a slip is saved for sharing.
type ShareReceipt struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// maxShareCodeLen bounds codes accepted from users and storage.
const maxShareCodeLen = 64

// ValidShareCode reports whether code is a plausible backend share code:
// non-empty ASCII letters and digits only.
func ValidShareCode(code string) bool {
	if code == "" || len(code) > maxShareCodeLen {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
			return false
		}
	}
	return true
}

// SharedSlipStatus is the backend's view of a shared slip.
type SharedSlipStatus string

const (
	SharedSlipActive  SharedSlipStatus = "active"
	SharedSlipExpired SharedSlipStatus = "expired"
	SharedSlipUsed    SharedSlipStatus = "used"
)

// SharedSlip is a slip snapshot fetched by share code.
type SharedSlip struct {
	Code      string           `json:"code"`
	Bets      []Selection      `json:"bets"`
	Status    SharedSlipStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

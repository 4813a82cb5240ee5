// Package slip holds the bet slip: the deduplicated selection list, the stake,
// the share state and the aggregates derived from them.
package slip

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/odds"
)

// Observer is called after every mutation with the post-mutation snapshot.
// Observers run synchronously under the store lock, in mutation order, and
// must not call back into the store.
type Observer func(domain.SlipChange)

// ApplyResult reports which price changes were written into the slip.
type ApplyResult struct {
	Applied []domain.PriceChange `json:"applied"`
	Skipped []domain.PriceChange `json:"skipped"`
}

// Store is the single authoritative slip of a session. All mutations are
// serialized; readers always see a fully applied state.
type Store struct {
	mu         sync.Mutex
	selections []domain.Selection
	stake      decimal.Decimal
	shareCode  *string
	status     domain.SlipStatus
	// revision counts edits to the selection list and its prices.
	revision uint64

	observers []observerEntry
	nextObsID int

	now func() time.Time
}

type observerEntry struct {
	id int
	fn Observer
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp new selections.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty, active slip.
func NewStore(opts ...Option) *Store {
	s := &Store{
		status: domain.SlipStatusActive,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add appends sel unless a selection with the same identity key is already in
// the slip, in which case it is a no-op and Add returns false. The selection
// is stamped with the current time and any share code is invalidated.
func (s *Store) Add(sel domain.Selection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if odds.Validate(sel.Odd).IsLocked() {
		return false
	}
	key := sel.Key()
	for _, existing := range s.selections {
		if existing.Key().Equal(key) {
			return false
		}
	}

	sel = domain.CloneSelections([]domain.Selection{sel})[0]
	sel.Timestamp = s.now().UTC()
	s.selections = append(s.selections, sel)
	s.shareCode = nil
	s.revision++
	s.notify(domain.ChangeAdd)
	return true
}

// Remove deletes every selection sharing the fixture, market and selection,
// whatever its handicap. It returns the number of entries removed.
func (s *Store) Remove(fixtureID int64, market, selection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.selections[:0]
	removed := 0
	for _, sel := range s.selections {
		if sel.Key().MatchesTriple(fixtureID, market, selection) {
			removed++
			continue
		}
		kept = append(kept, sel)
	}
	if removed == 0 {
		return 0
	}
	// Zero the tail so dropped handicap pointers are not retained.
	for i := len(kept); i < len(s.selections); i++ {
		s.selections[i] = domain.Selection{}
	}
	s.selections = kept
	s.shareCode = nil
	s.revision++
	s.notify(domain.ChangeRemove)
	return removed
}

// Clear empties the slip, resets the stake and forgets the share code.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selections = nil
	s.stake = decimal.Zero
	s.shareCode = nil
	s.status = domain.SlipStatusActive
	s.revision++
	s.notify(domain.ChangeClear)
}

// SetStake sets the stake from user input. Nil, empty and unparseable text
// become 0. Negative amounts, non-finite floats and values that are neither
// numbers nor text are refused with domain.ErrInvalidStake and leave the
// stake unchanged.
func (s *Store) SetStake(raw any) error {
	amount, err := parseStake(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stake = amount
	s.notify(domain.ChangeStake)
	return nil
}

func parseStake(raw any) (decimal.Decimal, error) {
	var d decimal.Decimal
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		return parseStakeString(v)
	case json.Number:
		return parseStakeString(string(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("slip: stake %v: %w", v, domain.ErrInvalidStake)
		}
		d = decimal.NewFromFloat(v)
	case float32:
		return parseStake(float64(v))
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case decimal.Decimal:
		d = v
	default:
		return decimal.Zero, fmt.Errorf("slip: stake of type %T: %w", raw, domain.ErrInvalidStake)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("slip: stake %s: %w", d, domain.ErrInvalidStake)
	}
	return d, nil
}

func parseStakeString(v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, nil
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("slip: stake %q: %w", v, domain.ErrInvalidStake)
	}
	return d, nil
}

// SetShareCode records the code the backend issued for the current slip.
// An empty code clears it.
func (s *Store) SetShareCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == "" {
		s.shareCode = nil
	} else {
		s.shareCode = &code
	}
	s.notify(domain.ChangeShareCode)
}

// SetShareCodeAt records code only when the slip is still at revision rev,
// so a code issued for an older selection list is never attached to a newer
// one. It reports whether the code was stored.
func (s *Store) SetShareCodeAt(rev uint64, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revision != rev || code == "" {
		return false
	}
	s.shareCode = &code
	s.notify(domain.ChangeShareCode)
	return true
}

// ShareCode returns the current share code, or "" when there is none.
func (s *Store) ShareCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shareCode == nil {
		return ""
	}
	return *s.shareCode
}

// SetStatus records the slip's coarse status.
func (s *Store) SetStatus(st domain.SlipStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == st {
		return
	}
	s.status = st
	s.notify(domain.ChangeStatus)
}

// Status returns the slip's coarse status.
func (s *Store) Status() domain.SlipStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Load replaces the slip with the given selections and share code. Entries
// with locked odds and later duplicates are dropped. The stake is kept. It
// returns the number of selections loaded.
func (s *Store) Load(selections []domain.Selection, code string) int {
	loaded := make([]domain.Selection, 0, len(selections))
	seen := make(map[string]bool, len(selections))
	for _, sel := range domain.CloneSelections(selections) {
		if odds.Validate(sel.Odd).IsLocked() {
			continue
		}
		k := sel.Key().String()
		if seen[k] {
			continue
		}
		seen[k] = true
		loaded = append(loaded, sel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections = loaded
	if code == "" {
		s.shareCode = nil
	} else {
		s.shareCode = &code
	}
	s.status = domain.SlipStatusActive
	s.revision++
	s.notify(domain.ChangeLoad)
	return len(loaded)
}

// ApplyPriceChanges writes each change's new price into the selection with
// the same identity key. Changes whose key is no longer in the slip, or whose
// new price is locked, are skipped. This is the only way a selection's odd
// changes after it was added.
func (s *Store) ApplyPriceChanges(changes []domain.PriceChange) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ApplyResult
	for _, c := range changes {
		price := odds.Validate(c.NewOdd)
		idx := s.indexOf(c.SelectionKey)
		if idx < 0 || price.IsLocked() {
			res.Skipped = append(res.Skipped, c)
			continue
		}
		s.selections[idx].Odd = price.Float()
		res.Applied = append(res.Applied, c)
	}
	if len(res.Applied) > 0 {
		s.revision++
		s.notify(domain.ChangeOdds)
	}
	return res
}

func (s *Store) indexOf(k domain.SelectionKey) int {
	for i, sel := range s.selections {
		if sel.Key().Equal(k) {
			return i
		}
	}
	return -1
}

// IsSelected reports whether any selection matches the triple, ignoring
// handicap.
func (s *Store) IsSelected(fixtureID int64, market, selection string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sel := range s.selections {
		if sel.Key().MatchesTriple(fixtureID, market, selection) {
			return true
		}
	}
	return false
}

// Selections returns a copy of the selection list in insertion order.
func (s *Store) Selections() []domain.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneSelections(s.selections)
}

// SelectionsAt returns a copy of the selection list together with the
// revision it belongs to.
func (s *Store) SelectionsAt() ([]domain.Selection, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneSelections(s.selections), s.revision
}

// Revision returns the current revision. It changes whenever selections are
// added, removed, replaced or repriced.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Len returns the number of selections.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.selections)
}

// FixtureIDs returns the distinct fixtures in the slip, in first-seen order.
func (s *Store) FixtureIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int64]bool, len(s.selections))
	ids := make([]int64, 0, len(s.selections))
	for _, sel := range s.selections {
		if !seen[sel.FixtureID] {
			seen[sel.FixtureID] = true
			ids = append(ids, sel.FixtureID)
		}
	}
	return ids
}

// TotalOdds is the product of all selection odds, or 0 for an empty slip.
func (s *Store) TotalOdds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalOdds().InexactFloat64()
}

// PotentialWin is stake times total odds when the stake is positive, else 0.
func (s *Store) PotentialWin() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.potentialWin().InexactFloat64()
}

// Snapshot returns a consistent copy of the slip with its aggregates.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Subscribe registers an observer and returns a function that removes it.
// The returned function must not be called from inside an observer.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) totalOdds() decimal.Decimal {
	if len(s.selections) == 0 {
		return decimal.Zero
	}
	total := decimal.NewFromInt(1)
	for _, sel := range s.selections {
		total = total.Mul(decimal.NewFromFloat(sel.Odd))
	}
	return total
}

func (s *Store) potentialWin() decimal.Decimal {
	if !s.stake.IsPositive() {
		return decimal.Zero
	}
	return s.stake.Mul(s.totalOdds())
}

func (s *Store) snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		Selections:   domain.CloneSelections(s.selections),
		Stake:        s.stake.InexactFloat64(),
		Status:       s.status,
		TotalOdds:    s.totalOdds().InexactFloat64(),
		PotentialWin: s.potentialWin().InexactFloat64(),
	}
	if snap.Selections == nil {
		snap.Selections = []domain.Selection{}
	}
	if s.shareCode != nil {
		code := *s.shareCode
		snap.ShareCode = &code
	}
	return snap
}

// notify must be called with s.mu held.
func (s *Store) notify(kind domain.ChangeKind) {
	if len(s.observers) == 0 {
		return
	}
	change := domain.SlipChange{Kind: kind, Snapshot: s.snapshot()}
	for _, o := range s.observers {
		o.fn(change)
	}
}

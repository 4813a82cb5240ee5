package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/slip"
)

type fakeValidator struct {
	mu      sync.Mutex
	calls   int
	verdict domain.Verdict
	err     error
	block   chan struct{}
}

func (f *fakeValidator) ValidateSlip(ctx context.Context, _ []domain.Selection) (domain.Verdict, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.verdict, f.err
}

type fakeInfo struct {
	known map[int64]*domain.MatchInfo
	asked []int64
}

func (f *fakeInfo) Ensure(_ context.Context, ids []int64, known map[int64]*domain.MatchInfo) map[int64]*domain.MatchInfo {
	f.asked = ids
	out := map[int64]*domain.MatchInfo{}
	for id, mi := range f.known {
		out[id] = mi
	}
	for id, mi := range known {
		out[id] = mi
	}
	return out
}

type countingRecorder struct {
	outcomes []string
	applied  int
}

func (r *countingRecorder) Validation(outcome string) { r.outcomes = append(r.outcomes, outcome) }
func (r *countingRecorder) PriceChangesApplied(n int)  { r.applied += n }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func key(fixture int64, market, selection string, handicap *string) domain.SelectionKey {
	return domain.SelectionKey{FixtureID: fixture, Market: market, Selection: selection, Handicap: handicap}
}

func newEngine(t *testing.T, v *fakeValidator) (*Engine, *slip.Store, *countingRecorder) {
	t.Helper()
	store := slip.NewStore()
	rec := &countingRecorder{}
	e := New(store, v, nil, discard(), rec)
	t.Cleanup(e.Close)
	return e, store, rec
}

func TestValidateEmptySlipMakesNoCall(t *testing.T) {
	v := &fakeValidator{}
	e, _, _ := newEngine(t, v)

	_, err := e.Validate(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmptySlip)
	assert.Equal(t, 0, v.calls)
	assert.Equal(t, StateIdle, e.State())
}

func TestValidateBackendFailure(t *testing.T) {
	v := &fakeValidator{err: errors.New("gateway timeout")}
	e, store, rec := newEngine(t, v)
	store.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8})

	_, err := e.Validate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, domain.SlipStatusError, store.Status())
	assert.Nil(t, e.Pending())
	assert.Equal(t, []string{"error"}, rec.outcomes)
}

func TestAllCurrent(t *testing.T) {
	v := &fakeValidator{verdict: domain.Verdict{Valid: true, Message: "ok"}}
	e, store, rec := newEngine(t, v)
	store.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8})

	review, err := e.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, review.AllCurrent)
	require.Len(t, review.Selections, 1)
	assert.Equal(t, domain.OutcomeUnchanged, review.Selections[0].Outcome)
	assert.Equal(t, StateAwaitingConfirmation, e.State())

	res, err := e.Confirm()
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, []string{"all_current"}, rec.outcomes)
}

func TestBusyWhileAwaitingConfirmation(t *testing.T) {
	v := &fakeValidator{verdict: domain.Verdict{Valid: true}}
	e, store, _ := newEngine(t, v)
	store.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8})

	_, err := e.Validate(context.Background())
	require.NoError(t, err)
	_, err = e.Validate(context.Background())
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.Equal(t, 1, v.calls)
}

func TestBusyWhileValidating(t *testing.T) {
	v := &fakeValidator{verdict: domain.Verdict{Valid: true}, block: make(chan struct{})}
	e, store, _ := newEngine(t, v)
	store.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8})

	done := make(chan error, 1)
	go func() {
		_, err := e.Validate(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return e.State() == StateValidating }, time.Second, 5*time.Millisecond)
	_, err := e.Validate(context.Background())
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(v.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateAwaitingConfirmation, e.State())
}

func TestEditDuringValidationDropsVerdict(t *testing.T) {
	edits := map[string]func(*slip.Store){
		"clear":  func(s *slip.Store) { s.Clear() },
		"remove": func(s *slip.Store) { s.Remove(1, "Match Winner", "Home") },
		"add": func(s *slip.Store) {
			s.Add(domain.Selection{FixtureID: 2, Market: "Match Winner", Selection: "Away", Odd: 2.6})
		},
	}
	for name, edit := range edits {
		t.Run(name, func(t *testing.T) {
			v := &fakeValidator{
				verdict: domain.Verdict{Valid: true, Changes: []domain.PriceChange{
					{SelectionKey: key(1, "Match Winner", "Home", nil), OldOdd: 1.8, NewOdd: 2.0},
				}},
				block: make(chan struct{}),
			}
			e, store, rec := newEngine(t, v)
			store.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8})

			done := make(chan error, 1)
			go func() {
				_, err := e.Validate(context.Background())
				done <- err
			}()
			require.Eventually(t, func() bool { return e.State() == StateValidating }, time.Second, 5*time.Millisecond)

			edit(store)
			close(v.block)

			assert.ErrorIs(t, <-done, domain.ErrSlipChanged)
			assert.Equal(t, StateIdle, e.State())
			assert.Nil(t, e.Pending())
			assert.Equal(t, []string{"stale"}, rec.outcomes)
		})
	}
}

func TestStakeChangeDuringValidationKeepsVerdict(t *testing.T) {
	v := &fakeValidator{verdict: domain.Verdict{Valid: true}, block: make(chan struct{})}
	e, store, _ := newEngine(t, v)
	store.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8})

	done := make(chan error, 1)
	go func() {
		_, err := e.Validate(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return e.State() == StateValidating }, time.Second, 5*time.Millisecond)

	require.NoError(t, store.SetStake(5))
	close(v.block)

	require.NoError(t, <-done)
	assert.Equal(t, StateAwaitingConfirmation, e.State())
}

func TestConfirmAndCancelWithoutVerdict(t *testing.T) {
	e, _, _ := newEngine(t, &fakeValidator{})

	_, err := e.Confirm()
	assert.ErrorIs(t, err, domain.ErrNoVerdict)
	assert.ErrorIs(t, e.Cancel(), domain.ErrNoVerdict)
}

func TestCancelLeavesSlipUntouched(t *testing.T) {
	v := &fakeValidator{verdict: domain.Verdict{
		Changes: []domain.PriceChange{{SelectionKey: key(1, "Match Winner", "Home", nil), OldOdd: 1.8, NewOdd: 2.0}},
	}}
	e, store, _ := newEngine(t, v)
	store.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8})

	_, err := e.Validate(context.Background())
	require.NoError(t, err)
	require.NoError(t, e.Cancel())

	assert.Equal(t, StateIdle, e.State())
	assert.Nil(t, e.Pending())
	assert.Equal(t, 1.8, store.Selections()[0].Odd)
}

func TestEditDiscardsPendingReview(t *testing.T) {
	v := &fakeValidator{verdict: domain.Verdict{
		Changes: []domain.PriceChange{{SelectionKey: key(1, "Match Winner", "Home", nil), OldOdd: 1.8, NewOdd: 2.0}},
	}}
	e, store, _ := newEngine(t, v)
	store.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8})

	_, err := e.Validate(context.Background())
	require.NoError(t, err)

	require.NoError(t, store.SetStake(5))
	assert.Equal(t, StateAwaitingConfirmation, e.State(), "stake changes keep the review")

	store.Add(domain.Selection{FixtureID: 2, Market: "Match Winner", Selection: "Away", Odd: 3.0})
	assert.Equal(t, StateIdle, e.State())
	assert.Nil(t, e.Pending())

	_, err = e.Confirm()
	assert.ErrorIs(t, err, domain.ErrNoVerdict)
	assert.Equal(t, 1.8, store.Selections()[0].Odd)
}

func TestConfirmSkipsRemovedSelections(t *testing.T) {
	v := &fakeValidator{verdict: domain.Verdict{
		Changes: []domain.PriceChange{
			{SelectionKey: key(1, "Match Winner", "Home", nil), OldOdd: 1.8, NewOdd: 2.0},
			{SelectionKey: key(2, "Match Winner", "Away", nil), OldOdd: 3.0, NewOdd: 3.2},
		},
		MatchInfo: map[int64]*domain.MatchInfo{},
	}, block: make(chan struct{})}
	e, store, _ := newEngine(t, v)
	store.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8})
	store.Add(domain.Selection{FixtureID: 2, Market: "Match Winner", Selection: "Away", Odd: 3.0})

	done := make(chan error, 1)
	go func() {
		_, err := e.Validate(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return e.State() == StateValidating }, time.Second, 5*time.Millisecond)

	// A mutation that slipped past the UI while the call was in flight.
	store.Remove(2, "Match Winner", "Away")
	close(v.block)
	require.NoError(t, <-done)

	res, err := e.Confirm()
	require.NoError(t, err)
	assert.Len(t, res.Applied, 1)
	assert.Len(t, res.Skipped, 1)
	assert.Equal(t, 2.0, store.Selections()[0].Odd)
}

func TestClassificationPrecedence(t *testing.T) {
	lock := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	bets := []domain.Selection{
		{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8},
		{FixtureID: 2, Market: "Match Winner", Selection: "Away", Odd: 3.0},
		{FixtureID: 3, Market: "Goals Over/Under", Selection: "Over", Odd: 1.9, Handicap: domain.HandicapPtr("2.5")},
		{FixtureID: 4, Market: "Both Teams Score", Selection: "Yes", Odd: 1.7},
		{FixtureID: 5, Market: "Match Winner", Selection: "Draw", Odd: 3.4},
		{FixtureID: 6, Market: "Match Winner", Selection: "Home", Odd: 2.2},
		{FixtureID: 7, Market: "Match Winner", Selection: "Home", Odd: 1.5},
	}
	v := domain.Verdict{
		Valid: false,
		Changes: []domain.PriceChange{
			{SelectionKey: bets[0].Key(), OldOdd: 1.8, NewOdd: 1.7},
			{SelectionKey: bets[1].Key(), OldOdd: 3.0, NewOdd: 3.3, ChangePercent: 10},
			{SelectionKey: bets[2].Key(), OldOdd: 1.9, NewOdd: 2.0},
			{SelectionKey: bets[5].Key(), OldOdd: 2.2, NewOdd: 0},
			{SelectionKey: bets[6].Key(), OldOdd: 1.5, NewOdd: 1.5},
		},
		Closed: []domain.ClosedSelection{
			{SelectionKey: key(2, "Match Winner", "", nil), Message: ""},
		},
		Rejected: []domain.RejectedSelection{
			{FixtureID: 3, Reason: "goal", Message: "Goal scored", LockUntil: &lock},
		},
		Errors: []domain.SelectionError{{FixtureID: 3, Error: "no data"}, {FixtureID: 4, Error: "no data"}},
	}
	info := map[int64]*domain.MatchInfo{
		2: {FixtureID: 2, Status: domain.MatchStatus{Short: "FT"}},
		6: {FixtureID: 6, Status: domain.MatchStatus{Short: "PST"}},
	}

	r := normalize(bets, v, info)
	require.Len(t, r.Selections, 7)

	assert.Equal(t, domain.OutcomePriceChanged, r.Selections[0].Outcome)
	assert.False(t, r.Selections[0].Change.IsIncrease())
	assert.Equal(t, -5.56, r.Selections[0].Change.ChangePercent)

	assert.Equal(t, domain.OutcomeClosed, r.Selections[1].Outcome, "closed beats changed")
	assert.Equal(t, domain.ClosedReasonFinished, r.Selections[1].Closed.Reason)
	assert.Equal(t, closedMessage, r.Selections[1].Closed.Message)
	require.NotNil(t, r.Selections[1].MatchInfo)

	assert.Equal(t, domain.OutcomeRejected, r.Selections[2].Outcome, "rejected beats error and changed")
	assert.Equal(t, lock, r.Selections[2].Rejected.RetryAt())

	assert.Equal(t, domain.OutcomeError, r.Selections[3].Outcome)
	assert.Equal(t, "no data", r.Selections[3].Error)

	assert.Equal(t, domain.OutcomeUnchanged, r.Selections[4].Outcome)

	assert.Equal(t, domain.OutcomeClosed, r.Selections[5].Outcome, "locked new price closes")
	assert.Equal(t, domain.ClosedReasonPostponed, r.Selections[5].Closed.Reason)
	assert.Equal(t, lockedPriceMessage, r.Selections[5].Closed.Message)

	assert.Equal(t, domain.OutcomeUnchanged, r.Selections[6].Outcome, "same price is not a change")

	assert.Len(t, r.Verdict.Changes, 1)
	assert.Len(t, r.Verdict.Closed, 2)
	assert.Len(t, r.Verdict.Rejected, 1)
	assert.Len(t, r.Verdict.Errors, 1)
	assert.False(t, r.AllCurrent)
}

func TestValidateUsesInfoCache(t *testing.T) {
	v := &fakeValidator{verdict: domain.Verdict{
		Valid:     true,
		Closed:    []domain.ClosedSelection{{SelectionKey: key(9, "Match Winner", "Home", nil)}},
		MatchInfo: map[int64]*domain.MatchInfo{9: {FixtureID: 9, Status: domain.MatchStatus{Short: "CANC"}}},
	}}
	store := slip.NewStore()
	info := &fakeInfo{}
	e := New(store, v, info, discard(), nil)
	defer e.Close()
	store.Add(domain.Selection{FixtureID: 9, Market: "Match Winner", Selection: "Home", Odd: 2.5})
	store.Add(domain.Selection{FixtureID: 9, Market: "Match Winner", Selection: "Away", Odd: 2.9})

	review, err := e.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, info.asked)
	assert.Equal(t, domain.ClosedReasonCancelled, review.Selections[0].Closed.Reason)
	assert.Equal(t, domain.OutcomeUnchanged, review.Selections[1].Outcome)
}

func TestConfirmKeepsClosedSelections(t *testing.T) {
	v := &fakeValidator{verdict: domain.Verdict{
		Closed: []domain.ClosedSelection{{SelectionKey: key(1, "Match Winner", "Home", nil), Reason: domain.ClosedReasonFinished}},
	}}
	e, store, _ := newEngine(t, v)
	store.Add(domain.Selection{FixtureID: 1, Market: "Match Winner", Selection: "Home", Odd: 1.8})

	_, err := e.Validate(context.Background())
	require.NoError(t, err)
	_, err = e.Confirm()
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestValidateConfirmScenario(t *testing.T) {
	v := &fakeValidator{verdict: domain.Verdict{
		Valid: false,
		Changes: []domain.PriceChange{{
			SelectionKey: key(100, "Match Winner", "Home", nil),
			OldOdd:       1.85,
			NewOdd:       2.00,
		}},
	}}
	e, store, rec := newEngine(t, v)

	store.Add(domain.Selection{FixtureID: 100, Market: "Match Winner", Selection: "Home", Odd: 1.85})
	store.Add(domain.Selection{FixtureID: 100, Market: "Match Winner", Selection: "Home", Odd: 1.90})
	require.Equal(t, 1, store.Len())
	require.NoError(t, store.SetStake(10))
	assert.Equal(t, 18.5, store.PotentialWin())

	review, err := e.Validate(context.Background())
	require.NoError(t, err)
	require.Len(t, review.Verdict.Changes, 1)
	assert.True(t, review.Verdict.Changes[0].IsIncrease())
	assert.Equal(t, 1.85, store.Selections()[0].Odd, "validation does not edit the slip")

	res, err := e.Confirm()
	require.NoError(t, err)
	assert.Len(t, res.Applied, 1)
	assert.Equal(t, 20.0, store.PotentialWin())
	assert.Equal(t, 1, rec.applied)
	assert.Equal(t, StateIdle, e.State())
}

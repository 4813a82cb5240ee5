// Package reconcile syncs slip prices with the backend through a
// propose, review and apply protocol. Validation never edits the slip; only a
// confirmed review writes new prices back.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/slip"
)

// State is the engine's position in the validation round.
type State string

const (
	StateIdle                 State = "idle"
	StateValidating           State = "validating"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateApplying             State = "applying"
	StateCancelled            State = "cancelled"
)

// Validator re-prices a slip on the backend.
type Validator interface {
	ValidateSlip(ctx context.Context, bets []domain.Selection) (domain.Verdict, error)
}

// InfoCache annotates selections with match info. Ensure merges known and
// fetches what is still missing.
type InfoCache interface {
	Ensure(ctx context.Context, ids []int64, known map[int64]*domain.MatchInfo) map[int64]*domain.MatchInfo
}

// Recorder observes validation rounds.
type Recorder interface {
	Validation(outcome string)
	PriceChangesApplied(n int)
}

// Engine runs one validation round at a time against a store.
type Engine struct {
	store     *slip.Store
	validator Validator
	info      InfoCache
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   State
	pending *Review
	// generation advances on every selection edit; a round whose starting
	// generation is no longer current is stale.
	generation uint64

	unsubscribe func()
}

// New returns an idle engine bound to store. info and recorder may be nil.
// The engine watches the store and drops a pending review as soon as the
// selection list is edited.
func New(store *slip.Store, validator Validator, info InfoCache, logger *slog.Logger, recorder Recorder) *Engine {
	e := &Engine{
		store:     store,
		validator: validator,
		info:      info,
		recorder:  recorder,
		logger:    logger.With(slog.String("component", "reconcile")),
		now:       time.Now,
		state:     StateIdle,
	}
	e.unsubscribe = store.Subscribe(e.onSlipChange)
	return e
}

// Close detaches the engine from its store.
func (e *Engine) Close() {
	e.unsubscribe()
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pending returns the review awaiting confirmation, or nil.
func (e *Engine) Pending() *Review {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil
	}
	r := *e.pending
	return &r
}

// Validate sends the current selections to the backend and holds the
// normalized verdict for review. It fails with domain.ErrEmptySlip without a
// backend call when the slip is empty and with domain.ErrBusy when a round is
// already running or awaiting confirmation. A backend failure sets the slip
// status to error and returns the engine to idle. When the selections are
// edited while the backend call is in flight the verdict is dropped and
// Validate fails with domain.ErrSlipChanged.
func (e *Engine) Validate(ctx context.Context) (*Review, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		st := e.state
		e.mu.Unlock()
		return nil, fmt.Errorf("reconcile: validate in state %s: %w", st, domain.ErrBusy)
	}
	e.transition(StateValidating)
	gen := e.generation
	e.mu.Unlock()

	bets := e.store.Selections()
	if len(bets) == 0 {
		e.reset()
		return nil, fmt.Errorf("reconcile: validate: %w", domain.ErrEmptySlip)
	}

	verdict, err := e.validator.ValidateSlip(ctx, bets)
	if err != nil {
		e.logger.WarnContext(ctx, "validation failed",
			slog.Int("selections", len(bets)),
			slog.String("error", err.Error()),
		)
		e.store.SetStatus(domain.SlipStatusError)
		e.record("error")
		e.reset()
		return nil, fmt.Errorf("reconcile: validate: %w", err)
	}

	var info map[int64]*domain.MatchInfo
	if e.info != nil {
		info = e.info.Ensure(ctx, fixtureIDs(bets), verdict.MatchInfo)
	} else {
		info = verdict.MatchInfo
	}

	review := normalize(bets, verdict, info)
	review.ValidatedAt = e.now().UTC()
	e.store.SetStatus(domain.SlipStatusActive)

	e.mu.Lock()
	if e.generation != gen {
		e.transition(StateIdle)
		e.mu.Unlock()
		e.record("stale")
		e.logger.InfoContext(ctx, "slip edited during validation, discarding verdict")
		return nil, fmt.Errorf("reconcile: validate: %w", domain.ErrSlipChanged)
	}
	e.pending = review
	e.transition(StateAwaitingConfirmation)
	e.mu.Unlock()

	outcome := "review"
	if review.AllCurrent {
		outcome = "all_current"
	}
	e.record(outcome)
	e.logger.InfoContext(ctx, "validation complete",
		slog.String("outcome", outcome),
		slog.Int("changes", len(review.Verdict.Changes)),
		slog.Int("closed", len(review.Verdict.Closed)),
		slog.Int("rejected", len(review.Verdict.Rejected)),
		slog.Int("errors", len(review.Verdict.Errors)),
	)

	r := *review
	return &r, nil
}

// Confirm applies the pending price changes to the slip and returns to idle.
// Closed, rejected and errored selections stay in the slip. It fails with
// domain.ErrNoVerdict when nothing awaits confirmation.
func (e *Engine) Confirm() (slip.ApplyResult, error) {
	e.mu.Lock()
	if e.state != StateAwaitingConfirmation || e.pending == nil {
		e.mu.Unlock()
		return slip.ApplyResult{}, fmt.Errorf("reconcile: confirm: %w", domain.ErrNoVerdict)
	}
	review := e.pending
	e.pending = nil
	e.transition(StateApplying)
	e.mu.Unlock()

	res := e.store.ApplyPriceChanges(review.Verdict.Changes)
	if e.recorder != nil && len(res.Applied) > 0 {
		e.recorder.PriceChangesApplied(len(res.Applied))
	}
	e.logger.Info("price changes applied",
		slog.Int("applied", len(res.Applied)),
		slog.Int("skipped", len(res.Skipped)),
	)

	e.reset()
	return res, nil
}

// Cancel discards the pending review without touching the slip.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAwaitingConfirmation {
		return fmt.Errorf("reconcile: cancel: %w", domain.ErrNoVerdict)
	}
	e.pending = nil
	e.transition(StateCancelled)
	e.transition(StateIdle)
	return nil
}

// onSlipChange runs under the store lock; it must not call the store.
func (e *Engine) onSlipChange(c domain.SlipChange) {
	if !c.Kind.EditsSelections() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	if e.state != StateAwaitingConfirmation {
		return
	}
	e.logger.Info("slip edited during review, discarding verdict", slog.String("change", string(c.Kind)))
	e.pending = nil
	e.transition(StateIdle)
}

func (e *Engine) reset() {
	e.mu.Lock()
	e.transition(StateIdle)
	e.mu.Unlock()
}

// transition must be called with e.mu held.
func (e *Engine) transition(to State) {
	e.logger.Debug("state transition", slog.String("from", string(e.state)), slog.String("to", string(to)))
	e.state = to
}

func (e *Engine) record(outcome string) {
	if e.recorder != nil {
		e.recorder.Validation(outcome)
	}
}

func fixtureIDs(bets []domain.Selection) []int64 {
	seen := make(map[int64]bool, len(bets))
	ids := make([]int64, 0, len(bets))
	for _, b := range bets {
		if !seen[b.FixtureID] {
			seen[b.FixtureID] = true
			ids = append(ids, b.FixtureID)
		}
	}
	return ids
}

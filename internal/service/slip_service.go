package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/market"
	"github.com/alanyoungcy/betslip/internal/matchinfo"
	"github.com/alanyoungcy/betslip/internal/reconcile"
	"github.com/alanyoungcy/betslip/internal/share"
	"github.com/alanyoungcy/betslip/internal/slip"
)

// Bus channels the service publishes on.
const (
	ChannelSlip     = "slip"
	ChannelFixtures = "fixtures"
)

const (
	publishBuffer  = 64
	publishTimeout = 2 * time.Second
)

// OddsSource loads the odds board for one fixture.
type OddsSource interface {
	GetOdds(ctx context.Context, fixtureID int64) ([]market.Market, error)
}

// SlipView is the slip snapshot as served to clients, with the engine state.
type SlipView struct {
	domain.Snapshot
	EngineState reconcile.State `json:"engineState"`
}

// SlipService is the single entry point the transport layer uses. It keeps
// the slip, the validation engine, sharing and match info in step and
// publishes every slip change on the signal bus.
type SlipService struct {
	store  *slip.Store
	engine *reconcile.Engine
	sharer *share.Client
	info   *matchinfo.Cache
	odds   OddsSource
	bus    domain.SignalBus
	logger *slog.Logger
	now    func() time.Time

	updates     chan SlipView
	unsubscribe func()
}

// NewSlipService creates a SlipService with all required dependencies. odds
// may be nil, in which case Odds reports domain.ErrNotFound.
func NewSlipService(
	store *slip.Store,
	engine *reconcile.Engine,
	sharer *share.Client,
	info *matchinfo.Cache,
	odds OddsSource,
	bus domain.SignalBus,
	logger *slog.Logger,
) *SlipService {
	s := &SlipService{
		store:   store,
		engine:  engine,
		sharer:  sharer,
		info:    info,
		odds:    odds,
		bus:     bus,
		logger:  logger.With(slog.String("component", "slip_service")),
		now:     time.Now,
		updates: make(chan SlipView, publishBuffer),
	}
	s.unsubscribe = store.Subscribe(s.onSlipChange)
	return s
}

// Close stops watching the store.
func (s *SlipService) Close() {
	s.unsubscribe()
}

// Run publishes queued slip views on the bus until ctx is cancelled.
func (s *SlipService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case view := <-s.updates:
			s.publish(ctx, ChannelSlip, view)
		}
	}
}

// Snapshot returns the current slip view.
func (s *SlipService) Snapshot() SlipView {
	return SlipView{Snapshot: s.store.Snapshot(), EngineState: s.engine.State()}
}

// AddSelection canonicalizes a pick and adds it to the slip. It reports false
// when the selection is already in the slip. Picks are refused with
// domain.ErrBusy while a validation round is in flight.
func (s *SlipService) AddSelection(ctx context.Context, p market.Pick) (domain.Selection, bool, error) {
	if err := s.editable("add selection"); err != nil {
		return domain.Selection{}, false, err
	}
	sel, err := market.NewSelection(p, s.now())
	if err != nil {
		return domain.Selection{}, false, fmt.Errorf("slip_service: add selection: %w", err)
	}
	added := s.store.Add(sel)
	s.logger.DebugContext(ctx, "add selection",
		slog.String("key", sel.Key().String()),
		slog.Bool("added", added),
	)
	return sel, added, nil
}

// RemoveSelection removes every selection matching the triple, whatever its
// handicap. Market and selection may be given as codes or names.
func (s *SlipService) RemoveSelection(fixtureID int64, mkt, selection string) (int, error) {
	if err := s.editable("remove selection"); err != nil {
		return 0, err
	}
	mkt, selection = canonical(mkt, selection)
	return s.store.Remove(fixtureID, mkt, selection), nil
}

// IsSelected reports whether any selection matches the triple.
func (s *SlipService) IsSelected(fixtureID int64, mkt, selection string) bool {
	mkt, selection = canonical(mkt, selection)
	return s.store.IsSelected(fixtureID, mkt, selection)
}

// Clear empties the slip.
func (s *SlipService) Clear() error {
	if err := s.editable("clear"); err != nil {
		return err
	}
	s.store.Clear()
	return nil
}

// SetStake sets the stake from user input.
func (s *SlipService) SetStake(raw any) error {
	if err := s.editable("set stake"); err != nil {
		return err
	}
	if err := s.store.SetStake(raw); err != nil {
		return fmt.Errorf("slip_service: set stake: %w", err)
	}
	return nil
}

// Share saves the slip on the backend and returns the receipt.
func (s *SlipService) Share(ctx context.Context) (domain.ShareReceipt, error) {
	if err := s.editable("share"); err != nil {
		return domain.ShareReceipt{}, err
	}
	receipt, err := s.sharer.Share(ctx)
	if err != nil {
		return domain.ShareReceipt{}, fmt.Errorf("slip_service: %w", err)
	}
	return receipt, nil
}

// Redeem fetches a shared slip without touching the current selections.
func (s *SlipService) Redeem(ctx context.Context, code string) (*domain.SharedSlip, domain.SlipStatus) {
	return s.sharer.Redeem(ctx, code)
}

// Import replaces the slip with a shared one.
func (s *SlipService) Import(ctx context.Context, code string) (int, domain.SlipStatus, error) {
	if err := s.editable("import"); err != nil {
		return 0, s.store.Status(), err
	}
	n, status := s.sharer.Import(ctx, code)
	return n, status, nil
}

// Validate starts a validation round and returns the review.
func (s *SlipService) Validate(ctx context.Context) (*reconcile.Review, error) {
	review, err := s.engine.Validate(ctx)
	s.enqueue(s.Snapshot())
	return review, err
}

// Pending returns the review awaiting confirmation, or nil.
func (s *SlipService) Pending() *reconcile.Review {
	return s.engine.Pending()
}

// Confirm applies the pending review's price changes.
func (s *SlipService) Confirm() (slip.ApplyResult, error) {
	res, err := s.engine.Confirm()
	if err != nil {
		return res, err
	}
	s.enqueue(s.Snapshot())
	return res, nil
}

// Cancel discards the pending review.
func (s *SlipService) Cancel() error {
	if err := s.engine.Cancel(); err != nil {
		return err
	}
	s.enqueue(s.Snapshot())
	return nil
}

// MatchInfo returns display metadata for ids, fetching what is not cached.
// Fixtures whose fetch failed map to nil.
func (s *SlipService) MatchInfo(ctx context.Context, ids []int64) map[int64]*domain.MatchInfo {
	return s.info.Ensure(ctx, ids, nil)
}

// Odds returns the normalized odds board for a fixture.
func (s *SlipService) Odds(ctx context.Context, fixtureID int64) ([]market.Market, error) {
	if s.odds == nil {
		return nil, fmt.Errorf("slip_service: odds for fixture %d: %w", fixtureID, domain.ErrNotFound)
	}
	markets, err := s.odds.GetOdds(ctx, fixtureID)
	if err != nil {
		return nil, fmt.Errorf("slip_service: odds for fixture %d: %w", fixtureID, err)
	}
	return markets, nil
}

// RefreshMatchInfo refetches match info for every fixture in the slip.
func (s *SlipService) RefreshMatchInfo(ctx context.Context) {
	ids := s.store.FixtureIDs()
	if len(ids) == 0 {
		return
	}
	s.info.Refresh(ctx, ids)
}

// HandleFixtureEvent reacts to a live feed event. A match that kicks off
// while in the slip has its match info refetched. Every event is forwarded
// on the fixtures channel; the slip itself is never changed.
func (s *SlipService) HandleFixtureEvent(ctx context.Context, ev domain.FixtureEvent) {
	if ev.Type == domain.EventMatchStarted && s.inSlip(ev.FixtureID) {
		s.info.Refresh(ctx, []int64{ev.FixtureID})
	}
	s.publish(ctx, ChannelFixtures, ev)
}

// editable fails with domain.ErrBusy while a validation round is in flight.
func (s *SlipService) editable(op string) error {
	if s.engine.State() == reconcile.StateValidating {
		return fmt.Errorf("slip_service: %s: %w", op, domain.ErrBusy)
	}
	return nil
}

func (s *SlipService) inSlip(fixtureID int64) bool {
	for _, id := range s.store.FixtureIDs() {
		if id == fixtureID {
			return true
		}
	}
	return false
}

// onSlipChange runs under the store lock, so it only queues.
func (s *SlipService) onSlipChange(c domain.SlipChange) {
	s.enqueue(SlipView{Snapshot: c.Snapshot, EngineState: s.engine.State()})
}

func (s *SlipService) enqueue(v SlipView) {
	select {
	case s.updates <- v:
	default:
		s.logger.Warn("slip update dropped, publisher is behind")
	}
}

func (s *SlipService) publish(ctx context.Context, channel string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.ErrorContext(ctx, "slip_service: marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.bus.Publish(pubCtx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "slip_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func canonical(mkt, selection string) (string, string) {
	mkt = strings.TrimSpace(mkt)
	selection = strings.TrimSpace(selection)
	if name, ok := market.CanonicalSelection(mkt, selection); ok {
		selection = name
	}
	if name, ok := market.CanonicalMarket(mkt); ok {
		mkt = name
	}
	return mkt, selection
}

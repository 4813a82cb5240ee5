// Package share obtains share codes for the slip and redeems them.
package share

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/slip"
)

// Backend is the part of the slip backend used for sharing.
type Backend interface {
	SaveSlip(ctx context.Context, bets []domain.Selection) (domain.ShareReceipt, error)
	GetSlip(ctx context.Context, code string) (domain.SharedSlip, error)
}

// Recorder observes sharing outcomes. op is "share", "redeem" or "import".
type Recorder interface {
	ShareOutcome(op string, status domain.SlipStatus)
}

// Client turns backend failures into slip status. Only Share reports errors,
// because its caller needs to tell a failed save from a stale one.
type Client struct {
	backend  Backend
	store    *slip.Store
	logger   *slog.Logger
	recorder Recorder
}

// NewClient returns a Client updating store. recorder may be nil.
func NewClient(backend Backend, store *slip.Store, logger *slog.Logger, recorder Recorder) *Client {
	return &Client{
		backend:  backend,
		store:    store,
		logger:   logger.With(slog.String("component", "share")),
		recorder: recorder,
	}
}

// Share saves the current selections and stores the issued code. An empty
// slip is not sent and fails with domain.ErrEmptySlip. A backend failure sets
// the slip status to error. When the slip is edited while the save is in
// flight the code no longer describes it: it is discarded and Share fails
// with domain.ErrSlipChanged.
func (c *Client) Share(ctx context.Context) (domain.ShareReceipt, error) {
	bets, rev := c.store.SelectionsAt()
	if len(bets) == 0 {
		return domain.ShareReceipt{}, fmt.Errorf("share: %w", domain.ErrEmptySlip)
	}

	c.store.SetStatus(domain.SlipStatusLoading)
	receipt, err := c.backend.SaveSlip(ctx, bets)
	if err == nil && receipt.Code == "" {
		err = fmt.Errorf("no code issued: %w", domain.ErrBackend)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "share slip failed",
			slog.Int("selections", len(bets)),
			slog.String("error", err.Error()),
		)
		c.store.SetStatus(domain.SlipStatusError)
		c.record("share", domain.SlipStatusError)
		return domain.ShareReceipt{}, fmt.Errorf("share: save slip: %w", err)
	}

	stored := c.store.SetShareCodeAt(rev, receipt.Code)
	c.store.SetStatus(domain.SlipStatusActive)
	if !stored {
		c.logger.WarnContext(ctx, "slip edited while sharing, discarding code",
			slog.String("code", receipt.Code),
		)
		c.record("share", domain.SlipStatusError)
		return domain.ShareReceipt{}, fmt.Errorf("share: %w", domain.ErrSlipChanged)
	}

	c.record("share", domain.SlipStatusActive)
	c.logger.InfoContext(ctx, "slip shared",
		slog.String("code", receipt.Code),
		slog.Time("expires_at", receipt.ExpiresAt),
	)
	return receipt, nil
}

// Redeem fetches a shared slip. The returned status is active when the slip
// can be used, expired when the backend reports the code as gone (HTTP 410,
// or a payload status of expired or used) and error for anything else. The
// slip is returned for both active and expired outcomes when the backend
// sent one. The store status mirrors the outcome.
func (c *Client) Redeem(ctx context.Context, code string) (*domain.SharedSlip, domain.SlipStatus) {
	shared, status := c.redeem(ctx, code)
	c.store.SetStatus(status)
	c.record("redeem", status)
	return shared, status
}

func (c *Client) redeem(ctx context.Context, code string) (*domain.SharedSlip, domain.SlipStatus) {
	if !domain.ValidShareCode(code) {
		c.logger.WarnContext(ctx, "refusing malformed share code")
		return nil, domain.SlipStatusError
	}

	c.store.SetStatus(domain.SlipStatusLoading)
	shared, err := c.backend.GetSlip(ctx, code)
	switch {
	case errors.Is(err, domain.ErrExpired):
		c.logger.InfoContext(ctx, "shared slip expired", slog.String("code", code))
		return nil, domain.SlipStatusExpired
	case err != nil:
		c.logger.WarnContext(ctx, "redeem share code failed",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		return nil, domain.SlipStatusError
	}

	switch shared.Status {
	case domain.SharedSlipExpired, domain.SharedSlipUsed:
		return &shared, domain.SlipStatusExpired
	default:
		return &shared, domain.SlipStatusActive
	}
}

// Import redeems code and, when the shared slip is active, replaces the
// current slip with it. It returns the number of selections loaded.
func (c *Client) Import(ctx context.Context, code string) (int, domain.SlipStatus) {
	shared, status := c.redeem(ctx, code)
	if status != domain.SlipStatusActive {
		c.store.SetStatus(status)
		c.record("import", status)
		return 0, status
	}

	if shared.Code == "" {
		shared.Code = code
	}
	n := c.store.Load(shared.Bets, shared.Code)
	c.record("import", domain.SlipStatusActive)
	c.logger.InfoContext(ctx, "shared slip imported",
		slog.String("code", shared.Code),
		slog.Int("selections", n),
	)
	return n, domain.SlipStatusActive
}

func (c *Client) record(op string, status domain.SlipStatus) {
	if c.recorder != nil {
		c.recorder.ShareOutcome(op, status)
	}
}

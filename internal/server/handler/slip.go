package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/market"
	"github.com/alanyoungcy/betslip/internal/reconcile"
	"github.com/alanyoungcy/betslip/internal/service"
	"github.com/alanyoungcy/betslip/internal/slip"
)

// SlipService defines what the slip handlers need from the service layer.
type SlipService interface {
	Snapshot() service.SlipView
	AddSelection(ctx context.Context, p market.Pick) (domain.Selection, bool, error)
	RemoveSelection(fixtureID int64, market, selection string) (int, error)
	IsSelected(fixtureID int64, market, selection string) bool
	Clear() error
	SetStake(raw any) error

	Share(ctx context.Context) (domain.ShareReceipt, error)
	Redeem(ctx context.Context, code string) (*domain.SharedSlip, domain.SlipStatus)
	Import(ctx context.Context, code string) (int, domain.SlipStatus, error)

	Validate(ctx context.Context) (*reconcile.Review, error)
	Pending() *reconcile.Review
	Confirm() (slip.ApplyResult, error)
	Cancel() error
}

// SlipHandler serves the slip endpoints.
type SlipHandler struct {
	slips  SlipService
	logger *slog.Logger
}

// NewSlipHandler creates a SlipHandler with the given service and logger.
func NewSlipHandler(slips SlipService, logger *slog.Logger) *SlipHandler {
	return &SlipHandler{slips: slips, logger: logHandler(logger, "slip")}
}

// selectionQuery addresses selections by fixture, market and selection.
type selectionQuery struct {
	FixtureID int64  `json:"fixtureId" validate:"gt=0"`
	Market    string `json:"market" validate:"required,max=128"`
	Selection string `json:"selection" validate:"required,max=128"`
}

func parseSelectionQuery(w http.ResponseWriter, r *http.Request) (selectionQuery, bool) {
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("fixtureId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "fixtureId must be an integer")
		return selectionQuery{}, false
	}
	sq := selectionQuery{FixtureID: id, Market: q.Get("market"), Selection: q.Get("selection")}
	if err := getValidator().validateStruct(sq); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": formatValidationError(err),
		})
		return selectionQuery{}, false
	}
	return sq, true
}

// GetSlip returns the current slip.
// GET /api/slip
func (h *SlipHandler) GetSlip(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.slips.Snapshot())
}

type addSelectionResponse struct {
	Added     bool             `json:"added"`
	Selection domain.Selection `json:"selection"`
	Slip      service.SlipView `json:"slip"`
}

// AddSelection adds a pick to the slip. A duplicate pick is not an error;
// the response reports added=false.
// POST /api/slip/selections
func (h *SlipHandler) AddSelection(w http.ResponseWriter, r *http.Request) {
	var p market.Pick
	if !decodeAndValidate(w, r, &p) {
		return
	}

	sel, added, err := h.slips.AddSelection(r.Context(), p)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, addSelectionResponse{Added: added, Selection: sel, Slip: h.slips.Snapshot()})
}

// RemoveSelection removes every selection matching the triple.
// DELETE /api/slip/selections?fixtureId=1&market=1x2&selection=1
func (h *SlipHandler) RemoveSelection(w http.ResponseWriter, r *http.Request) {
	sq, ok := parseSelectionQuery(w, r)
	if !ok {
		return
	}
	n, err := h.slips.RemoveSelection(sq.FixtureID, sq.Market, sq.Selection)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removed": n,
		"slip":    h.slips.Snapshot(),
	})
}

// IsSelected reports whether the triple is in the slip.
// GET /api/slip/selections/selected?fixtureId=1&market=1x2&selection=1
func (h *SlipHandler) IsSelected(w http.ResponseWriter, r *http.Request) {
	sq, ok := parseSelectionQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"selected": h.slips.IsSelected(sq.FixtureID, sq.Market, sq.Selection),
	})
}

// ClearSlip empties the slip.
// DELETE /api/slip
func (h *SlipHandler) ClearSlip(w http.ResponseWriter, r *http.Request) {
	if err := h.slips.Clear(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.slips.Snapshot())
}

type stakeRequest struct {
	Stake any `json:"stake"`
}

// SetStake sets the stake. A null, empty or unparseable stake resets it to
// zero.
// PUT /api/slip/stake
func (h *SlipHandler) SetStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.slips.SetStake(req.Stake); err != nil {
		if errors.Is(err, domain.ErrInvalidStake) {
			writeError(w, statusFor(err), "stake must be a non-negative number")
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.slips.Snapshot())
}

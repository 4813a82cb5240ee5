package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/service"
)

// Validate asks the backend to re-price the slip and returns the review. The
// slip itself is unchanged until Confirm.
// POST /api/slip/validate
func (h *SlipHandler) Validate(w http.ResponseWriter, r *http.Request) {
	review, err := h.slips.Validate(r.Context())
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.WarnContext(r.Context(), "handler: validate failed",
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// GetReview returns the review awaiting confirmation.
// GET /api/slip/review
func (h *SlipHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	review := h.slips.Pending()
	if review == nil {
		writeError(w, http.StatusNotFound, domain.ErrNoVerdict.Error())
		return
	}
	writeJSON(w, http.StatusOK, review)
}

type confirmResponse struct {
	Applied []domain.PriceChange `json:"applied"`
	Skipped []domain.PriceChange `json:"skipped"`
	Slip    service.SlipView     `json:"slip"`
}

// Confirm writes the reviewed price changes into the slip.
// POST /api/slip/confirm
func (h *SlipHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	res, err := h.slips.Confirm()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	applied, skipped := res.Applied, res.Skipped
	if applied == nil {
		applied = []domain.PriceChange{}
	}
	if skipped == nil {
		skipped = []domain.PriceChange{}
	}
	writeJSON(w, http.StatusOK, confirmResponse{Applied: applied, Skipped: skipped, Slip: h.slips.Snapshot()})
}

// Cancel discards the review and leaves the slip untouched.
// POST /api/slip/cancel
func (h *SlipHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.slips.Cancel(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.slips.Snapshot())
}

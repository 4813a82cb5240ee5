package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/betslip/internal/domain"
)

type shareResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Share saves the slip on the backend and returns the share code.
// POST /api/slip/share
func (h *SlipHandler) Share(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.slips.Share(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrEmptySlip):
		writeError(w, http.StatusBadRequest, domain.ErrEmptySlip.Error())
		return
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrSlipChanged):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		writeError(w, http.StatusBadGateway, "failed to share slip")
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{Code: receipt.Code, ExpiresAt: receipt.ExpiresAt})
}

type codeParam struct {
	Code string `json:"code" validate:"sharecode"`
}

func (h *SlipHandler) shareCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := codeParam{Code: pathParam(r, "code")}
	if err := getValidator().validateStruct(p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid share code")
		return "", false
	}
	return p.Code, true
}

// GetShared fetches a shared slip without loading it.
// GET /api/shared/{code}
func (h *SlipHandler) GetShared(w http.ResponseWriter, r *http.Request) {
	code, ok := h.shareCode(w, r)
	if !ok {
		return
	}

	shared, status := h.slips.Redeem(r.Context(), code)
	switch status {
	case domain.SlipStatusActive:
		writeJSON(w, http.StatusOK, shared)
	case domain.SlipStatusExpired:
		writeJSON(w, http.StatusGone, map[string]any{
			"error": "shared slip has expired",
			"slip":  shared,
		})
	default:
		writeError(w, http.StatusBadGateway, "failed to load shared slip")
	}
}

// Import replaces the slip with a shared one.
// POST /api/slip/import/{code}
func (h *SlipHandler) Import(w http.ResponseWriter, r *http.Request) {
	code, ok := h.shareCode(w, r)
	if !ok {
		return
	}

	n, status, err := h.slips.Import(r.Context(), code)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	switch status {
	case domain.SlipStatusActive:
		h.logger.InfoContext(r.Context(), "shared slip imported",
			slog.String("code", code),
			slog.Int("selections", n),
		)
		writeJSON(w, http.StatusOK, map[string]any{
			"loaded": n,
			"slip":   h.slips.Snapshot(),
		})
	case domain.SlipStatusExpired:
		writeError(w, http.StatusGone, "shared slip has expired")
	default:
		writeError(w, http.StatusBadGateway, "failed to import shared slip")
	}
}

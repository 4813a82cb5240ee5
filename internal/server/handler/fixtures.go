package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/market"
	"github.com/alanyoungcy/betslip/internal/odds"
)

// maxMatchInfoIDs bounds one match info lookup.
const maxMatchInfoIDs = 50

// FixtureService defines the fixture lookups the handlers need.
type FixtureService interface {
	MatchInfo(ctx context.Context, ids []int64) map[int64]*domain.MatchInfo
	Odds(ctx context.Context, fixtureID int64) ([]market.Market, error)
}

// FixtureHandler serves match info, odds boards and odds formatting.
type FixtureHandler struct {
	fixtures FixtureService
	logger   *slog.Logger
}

// NewFixtureHandler creates a FixtureHandler.
func NewFixtureHandler(fixtures FixtureService, logger *slog.Logger) *FixtureHandler {
	return &FixtureHandler{fixtures: fixtures, logger: logHandler(logger, "fixtures")}
}

// MatchInfo returns display metadata per fixture. Fixtures whose lookup
// failed map to null.
// GET /api/match-info?ids=1,2
func (h *FixtureHandler) MatchInfo(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids query parameter required")
		return
	}
	if len(ids) > maxMatchInfoIDs {
		writeError(w, http.StatusBadRequest, "too many ids (max "+strconv.Itoa(maxMatchInfoIDs)+")")
		return
	}

	infos := h.fixtures.MatchInfo(r.Context(), ids)
	out := make(map[string]*domain.MatchInfo, len(ids))
	for _, id := range ids {
		out[strconv.FormatInt(id, 10)] = infos[id]
	}
	writeJSON(w, http.StatusOK, out)
}

// Odds returns the normalized odds board of a fixture.
// GET /api/fixtures/{id}/odds
func (h *FixtureHandler) Odds(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(pathParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid fixture id")
		return
	}

	markets, err := h.fixtures.Odds(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.WarnContext(r.Context(), "handler: odds failed",
				slog.Int64("fixture_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, "failed to load odds")
		return
	}
	if markets == nil {
		markets = []market.Market{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fixtureId": id, "markets": markets})
}

// FormatOdds renders a decimal price in the requested notation.
// GET /api/odds/format?value=1.85&notation=american
func (h *FixtureHandler) FormatOdds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := odds.ParseNotation(q.Get("notation"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value := q.Get("value")
	price := odds.Validate(value)
	writeJSON(w, http.StatusOK, map[string]any{
		"value":     value,
		"notation":  n,
		"locked":    price.IsLocked(),
		"formatted": odds.Format(value, n),
	})
}

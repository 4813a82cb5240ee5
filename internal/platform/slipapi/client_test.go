package slipapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betslip/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", WithRateLimit(1000, 100), WithTimeout(5*time.Second))
}

func TestSaveSlip(t *testing.T) {
	var got betsRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/save-slip", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, `{"success":true,"data":{"code":"AB12CD","createdAt":"2026-05-01T10:00:00Z","expiresAt":"2026-05-08T10:00:00Z"}}`)
	})

	receipt, err := c.SaveSlip(context.Background(), []domain.Selection{
		{FixtureID: 100, Market: "Match Winner", Selection: "Home", Odd: 1.85},
		{FixtureID: 7, Market: "Goals Over/Under", Selection: "Over", Odd: 2.1, Handicap: domain.HandicapPtr("2.5")},
	})
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", receipt.Code)
	assert.Equal(t, time.Date(2026, 5, 8, 10, 0, 0, 0, time.UTC), receipt.ExpiresAt)

	require.Len(t, got.Bets, 2)
	assert.Equal(t, int64(100), got.Bets[0].FixtureID)
	assert.Nil(t, got.Bets[0].Handicap)
	require.NotNil(t, got.Bets[1].Handicap)
	assert.Equal(t, lineValue("2.5"), *got.Bets[1].Handicap)
}

func TestSaveSlipFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"database unavailable"}`)
	})

	_, err := c.SaveSlip(context.Background(), []domain.Selection{{FixtureID: 1, Market: "m", Selection: "s", Odd: 2}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestSaveSlipUnsuccessfulEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":"too many bets"}`)
	})

	_, err := c.SaveSlip(context.Background(), []domain.Selection{{FixtureID: 1, Market: "m", Selection: "s", Odd: 2}})
	assert.ErrorIs(t, err, domain.ErrBackend)
}

func TestGetSlip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-slip/AB12CD", r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"data":{
			"code":"AB12CD","status":"active",
			"createdAt":"2026-05-01T10:00:00Z","expiresAt":"2026-05-08T10:00:00Z",
			"bets":[{"fixtureId":100,"market":"Match Winner","selection":"Home","odd":"1.85","handicap":null},
			        {"fixtureId":7,"market":"Goals Over/Under","selection":"Over","odd":2.1,"handicap":2.5}]}}`)
	})

	shared, err := c.GetSlip(context.Background(), "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, domain.SharedSlipActive, shared.Status)
	require.Len(t, shared.Bets, 2)
	assert.Equal(t, 1.85, shared.Bets[0].Odd)
	assert.Nil(t, shared.Bets[0].Handicap)
	require.NotNil(t, shared.Bets[1].Handicap)
	assert.Equal(t, "2.5", *shared.Bets[1].Handicap)
}

func TestGetSlipStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusGone, domain.ErrExpired},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadGateway, domain.ErrBackend},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":"nope"}`)
			})
			_, err := c.GetSlip(context.Background(), "ABC")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateSlip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/validate-slip", r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"data":{
			"valid":false,"message":"prices moved",
			"changes":[{"fixtureId":100,"market":"Match Winner","selection":"Home","handicap":null,"oldOdd":1.85,"newOdd":2.0,"changePercent":8.1},
			           {"fixtureId":101,"market":"Match Winner","selection":"Away","oldOdd":3.1,"newOdd":"locked","changePercent":0}],
			"closed":[{"fixtureId":102,"market":"Match Winner","selection":"Draw","reason":"finished","message":"Match finished"},
			          {"fixtureId":103,"market":"Both Teams Score","selection":"Yes","reason":"Market suspended"}],
			"rejected":[{"fixtureId":104,"reason":"goal","message":"Goal scored","lockUntil":"2026-05-01T10:01:00Z"}],
			"errors":[{"fixtureId":105,"error":"fixture unknown"}],
			"matchInfo":{"100":{"live":true,"status":{"short":"1H","long":"First Half","elapsed":23},"score":{"home":1,"away":0},
			             "homeTeam":{"name":"Arsenal"},"awayTeam":{"name":"Chelsea"},"league":{"name":"Premier League"}}}}}`)
	})

	v, err := c.ValidateSlip(context.Background(), []domain.Selection{{FixtureID: 100, Market: "Match Winner", Selection: "Home", Odd: 1.85}})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	require.Len(t, v.Changes, 2)
	assert.Equal(t, 2.0, v.Changes[0].NewOdd)
	assert.Nil(t, v.Changes[0].Handicap)
	assert.Equal(t, 0.0, v.Changes[1].NewOdd, "locked price decodes as zero")

	require.Len(t, v.Closed, 2)
	assert.Equal(t, domain.ClosedReasonFinished, v.Closed[0].Reason)
	assert.Equal(t, domain.ClosedReasonNone, v.Closed[1].Reason)
	assert.Equal(t, "Market suspended", v.Closed[1].Message)

	require.Len(t, v.Rejected, 1)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 1, 0, 0, time.UTC), v.Rejected[0].RetryAt())

	require.Len(t, v.Errors, 1)
	assert.Equal(t, int64(105), v.Errors[0].FixtureID)

	require.Contains(t, v.MatchInfo, int64(100))
	mi := v.MatchInfo[100]
	assert.Equal(t, int64(100), mi.FixtureID)
	assert.True(t, mi.Live)
	require.NotNil(t, mi.Status.Elapsed)
	assert.Equal(t, 23, *mi.Status.Elapsed)
}

func TestHandicapLinesDecodeCanonically(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":{
			"valid":false,
			"changes":[{"fixtureId":7,"market":"Goals Over/Under","selection":"Over","handicap":2.50,"oldOdd":1.9,"newOdd":2.0},
			           {"fixtureId":8,"market":"Goals Over/Under","selection":"Over","handicap":"-0.50","oldOdd":1.9,"newOdd":2.0},
			           {"fixtureId":9,"market":"Asian Handicap","selection":"Home","handicap":" 0,0.5 ","oldOdd":1.9,"newOdd":2.0}]}}`)
	})

	v, err := c.ValidateSlip(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, v.Changes, 3)

	stored := domain.SelectionKey{FixtureID: 7, Market: "Goals Over/Under", Selection: "Over", Handicap: domain.HandicapPtr("2.5")}
	assert.True(t, stored.Equal(v.Changes[0].SelectionKey), "2.50 on the wire matches a stored 2.5")
	require.NotNil(t, v.Changes[1].Handicap)
	assert.Equal(t, "-0.5", *v.Changes[1].Handicap)
	require.NotNil(t, v.Changes[2].Handicap)
	assert.Equal(t, "0,0.5", *v.Changes[2].Handicap)

	t.Run("outgoing lines are canonical", func(t *testing.T) {
		body := toAPIBets([]domain.Selection{{FixtureID: 7, Handicap: domain.HandicapPtr("+2.50")}})
		require.NotNil(t, body[0].Handicap)
		assert.Equal(t, lineValue("2.5"), *body[0].Handicap)
	})
}

func TestGetMatchInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fixtures/42", r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"data":{
			"fixture":{"id":42,"status":{"short":"FT","long":"Match Finished","elapsed":90}},
			"league":{"name":"La Liga","country":"Spain"},
			"teams":{"home":{"name":"Betis","logo":"b.png"},"away":{"name":"Sevilla"}},
			"goals":{"home":2,"away":2}}}`)
	})

	info, err := c.GetMatchInfo(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.FixtureID)
	assert.False(t, info.Live)
	assert.Equal(t, domain.ClosedReasonFinished, info.ClosedReason())
	assert.Equal(t, "Betis", info.HomeTeam.Name)
	assert.Equal(t, "Spain", info.League.Country)
	require.NotNil(t, info.Score.Home)
	assert.Equal(t, 2, *info.Score.Home)
}

func TestGetOdds(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/odds/42", r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"data":{"bookmakers":[{"bets":[
			{"name":"Goals Over/Under","values":[{"value":"Over 2.5","odd":"1.90"},{"value":"Under 2.5","odd":"-"}]}]}]}}`)
	})

	markets, err := c.GetOdds(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	require.Len(t, markets[0].Outcomes, 2)
	assert.Equal(t, "Over", markets[0].Outcomes[0].Selection)
	assert.True(t, markets[0].Outcomes[1].Price.IsLocked())
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", WithRateLimit(0.001, 1))
	c.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetSlip(ctx, "ABC")
	assert.Error(t, err)
}

func TestCheckHTTPStatus(t *testing.T) {
	assert.NoError(t, checkHTTPStatus(http.StatusOK, nil))
	assert.NoError(t, checkHTTPStatus(http.StatusCreated, nil))

	err := checkHTTPStatus(http.StatusGone, []byte(`{"error":"slip expired"}`))
	assert.ErrorIs(t, err, domain.ErrExpired)
	assert.Contains(t, err.Error(), "slip expired")

	err = checkHTTPStatus(http.StatusServiceUnavailable, []byte("upstream down"))
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.Contains(t, err.Error(), "upstream down")
}

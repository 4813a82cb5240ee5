// Package slipapi is the REST client for the slip backend: sharing, share
// code lookup, slip validation, fixture metadata and odds.
package slipapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/market"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 10.0
	defaultBurst     = 5

	// maxBodyBytes caps response bodies read from the backend.
	maxBodyBytes = 4 << 20
)

// Client talks to the slip backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var (
	_ domain.SlipBackend      = (*Client)(nil)
	_ domain.MatchInfoFetcher = (*Client)(nil)
)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the client-side request rate.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient returns a client for the backend rooted at baseURL, e.g.
// "https://api.example.com/api".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SaveSlip stores bets and returns the issued share code.
func (c *Client) SaveSlip(ctx context.Context, bets []domain.Selection) (domain.ShareReceipt, error) {
	var data apiReceipt
	if err := c.do(ctx, http.MethodPost, "/save-slip", betsRequest{Bets: toAPIBets(bets)}, &data); err != nil {
		return domain.ShareReceipt{}, fmt.Errorf("slipapi: save slip: %w", err)
	}
	if !domain.ValidShareCode(data.Code) {
		return domain.ShareReceipt{}, fmt.Errorf("slipapi: save slip: malformed code %q: %w", data.Code, domain.ErrBackend)
	}
	return data.toDomain(), nil
}

// GetSlip fetches a shared slip. A code the backend reports as gone yields
// an error wrapping domain.ErrExpired.
func (c *Client) GetSlip(ctx context.Context, code string) (domain.SharedSlip, error) {
	var data apiSharedSlip
	if err := c.do(ctx, http.MethodGet, "/get-slip/"+url.PathEscape(code), nil, &data); err != nil {
		return domain.SharedSlip{}, fmt.Errorf("slipapi: get slip %s: %w", code, err)
	}
	return data.toDomain(), nil
}

// ValidateSlip asks the backend to re-price bets.
func (c *Client) ValidateSlip(ctx context.Context, bets []domain.Selection) (domain.Verdict, error) {
	var data apiVerdict
	if err := c.do(ctx, http.MethodPost, "/validate-slip", betsRequest{Bets: toAPIBets(bets)}, &data); err != nil {
		return domain.Verdict{}, fmt.Errorf("slipapi: validate slip: %w", err)
	}
	return data.toDomain(), nil
}

// GetMatchInfo fetches display metadata for one fixture.
func (c *Client) GetMatchInfo(ctx context.Context, fixtureID int64) (domain.MatchInfo, error) {
	var data apiFixture
	path := "/fixtures/" + strconv.FormatInt(fixtureID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return domain.MatchInfo{}, fmt.Errorf("slipapi: get fixture %d: %w", fixtureID, err)
	}
	info := data.toDomain()
	if info.FixtureID == 0 {
		info.FixtureID = fixtureID
	}
	return info, nil
}

// GetOdds fetches and normalizes the odds of one fixture.
func (c *Client) GetOdds(ctx context.Context, fixtureID int64) ([]market.Market, error) {
	var data json.RawMessage
	path := "/odds/" + strconv.FormatInt(fixtureID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, fmt.Errorf("slipapi: get odds %d: %w", fixtureID, err)
	}
	markets, err := market.ParseOdds(data)
	if err != nil {
		return nil, fmt.Errorf("slipapi: get odds %d: %w", fixtureID, err)
	}
	return markets, nil
}

// do sends one request and decodes the envelope's data field into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, raw); err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", errors.Join(domain.ErrBackend, err))
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request not successful"
		}
		return fmt.Errorf("%w: %s", domain.ErrBackend, msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", errors.Join(domain.ErrBackend, err))
	}
	return nil
}

// checkHTTPStatus maps non-2xx responses to domain errors. 410 is the only
// status that means a shared slip is gone.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := errorMessage(body)
	switch statusCode {
	case http.StatusGone:
		return fmt.Errorf("%w: %s", domain.ErrExpired, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrBackend, statusCode, msg)
	}
}

// errorMessage extracts {error} from a failure body, falling back to the raw
// text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

// internal/garmin/client.go
package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/models"
	"github.com/sstent/garmindash/internal/parser"
)

// Client talks to the Garmin Connect bridge service, which fronts the
// unofficial Connect API and hands out bearer tokens.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        zerolog.Logger
	now        func() time.Time
	parse      func([]byte) (*models.ActivityMetrics, error)
}

// Token is the result of a successful login.
type Token struct {
	Value       string `json:"token"`
	DisplayName string `json:"display_name"`
}

// NewClient creates a new Garmin API client
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("component", "garmin").Logger(),
		now:     time.Now,
		parse:   parser.Parse,
	}
}

// Login exchanges credentials for a session token. Rejected credentials are
// an AuthenticationError.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return Token{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, errors.Fetch(errors.KindNetwork, "Could not reach Garmin Connect", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Token{}, errors.Auth("Garmin Connect rejected the username or password", nil)
	}
	if err := statusError(resp); err != nil {
		return Token{}, err
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Token{}, errors.Fetch(errors.KindSchema, "Unexpected login response", err)
	}
	if tok.Value == "" {
		return Token{}, errors.Fetch(errors.KindSchema, "Login response did not include a token", nil)
	}

	c.log.Info().Str("display_name", tok.DisplayName).Msg("Logged in to Garmin Connect")
	return tok, nil
}

// Fetch downloads all records of one metric type for the range. Any request
// failure aborts the whole fetch; partial results are never returned.
// Activities without a usable file are left out of heart_rate.
func (c *Client) Fetch(ctx context.Context, token string, metric models.MetricType, r models.DateRange) ([]models.Record, error) {
	if err := r.Validate(c.now()); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrInput, "Invalid date range", "Pick an end date on or before today")
	}
	if token == "" {
		return nil, errors.Auth("Not logged in to Garmin Connect", nil)
	}

	start := time.Now()
	var (
		records []models.Record
		err     error
	)
	switch metric {
	case models.MetricHRV:
		records, err = c.fetchHRV(ctx, token, r)
	case models.MetricSleep:
		records, err = c.fetchSleep(ctx, token, r)
	case models.MetricDailySummary:
		records, err = c.fetchDailySummary(ctx, token, r)
	case models.MetricActivities:
		records, err = c.fetchActivities(ctx, token, r)
	case models.MetricHeartRate:
		records, err = c.fetchHeartRate(ctx, token, r)
	default:
		return nil, errors.New(errors.ErrInput, fmt.Sprintf("Unknown metric type %q", metric), "")
	}
	if err != nil {
		c.log.Warn().Err(err).Str("metric", metric.String()).Str("range", r.String()).Msg("Fetch failed")
		return nil, err
	}

	c.log.Debug().
		Str("metric", metric.String()).
		Str("range", r.String()).
		Int("records", len(records)).
		Dur("took", time.Since(start)).
		Msg("Fetched from Garmin Connect")
	return records, nil
}

// getJSON decodes the response into out. It reports false when the bridge
// has no data for the request (204 or 404).
func (c *Client) getJSON(ctx context.Context, token, path string, query url.Values, out interface{}) (bool, error) {
	resp, err := c.get(ctx, token, path, query)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := statusError(resp); err != nil {
		return false, err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, errors.Fetch(errors.KindSchema, "Unexpected response from "+path, err)
	}
	return true, nil
}

// getBytes returns the raw response body, or nil when the bridge has nothing
// for the request (204 or 404).
func (c *Client) getBytes(ctx context.Context, token, path string, query url.Values) ([]byte, error) {
	resp, err := c.get(ctx, token, path, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := statusError(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Fetch(errors.KindNetwork, "Download from "+path+" was interrupted", err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Fetch(errors.KindNetwork, "Request to Garmin Connect failed", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, errors.Auth("Garmin Connect session expired", nil)
	}
	return resp, nil
}

// statusError maps non-2xx responses to FetchErrors.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return errors.RateLimited("Garmin Connect rate limit reached", parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return errors.Fetch(errors.KindUpstream,
		fmt.Sprintf("API returned status %d", resp.StatusCode),
		fmt.Errorf("%s", strings.TrimSpace(string(body))))
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

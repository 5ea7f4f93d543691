package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gap-reversion-bot/internal/logging"
)

const (
	PaperTradingURL = "https://paper-api.alpaca.markets"
	LiveTradingURL  = "https://api.alpaca.markets"
	DefaultDataURL  = "https://data.alpaca.markets"
	DefaultFeed     = "iex"

	GapSourceBars     = "bars"
	GapSourceSnapshot = "snapshot"
)

// Config holds connection settings for the Alpaca REST APIs
type Config struct {
	APIKey     string
	SecretKey  string
	TradingURL string
	DataURL    string
	Feed       string
	GapSource  string
	Location   *time.Location // exchange time zone; New York when nil
}

// Client talks to the Alpaca trading and market data REST APIs
type Client struct {
	apiKey     string
	secretKey  string
	tradingURL string
	dataURL    string
	feed       string
	gapSource  string
	loc        *time.Location
	httpClient *http.Client
	now        func() time.Time
}

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from Alpaca
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func NewClient(cfg Config) *Client {
	if cfg.TradingURL == "" {
		cfg.TradingURL = PaperTradingURL
	}
	if cfg.DataURL == "" {
		cfg.DataURL = DefaultDataURL
	}
	if cfg.Feed == "" {
		cfg.Feed = DefaultFeed
	}
	if cfg.GapSource == "" {
		cfg.GapSource = GapSourceBars
	}
	loc := cfg.Location
	if loc == nil {
		if ny, err := time.LoadLocation("America/New_York"); err == nil {
			loc = ny
		} else {
			loc = time.UTC
		}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		tradingURL: cfg.TradingURL,
		dataURL:    cfg.DataURL,
		feed:       cfg.Feed,
		gapSource:  cfg.GapSource,
		loc:        loc,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// doRequest sends an authenticated request and returns the body of a 2xx
// response. payload, when non-nil, is sent as JSON.
func (c *Client) doRequest(ctx context.Context, method, baseURL, path string, params url.Values, payload interface{}) ([]byte, error) {
	endpoint := baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	logging.AlpacaAPIContext(path, map[string]string{"method": method}).
		WithDuration(time.Since(start)).
		Debug("Alpaca request", "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

func (c *Client) get(ctx context.Context, baseURL, path string, params url.Values, out interface{}) error {
	body, err := c.doRequest(ctx, http.MethodGet, baseURL, path, params, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("error parsing %s: %w", path, err)
	}
	return nil
}

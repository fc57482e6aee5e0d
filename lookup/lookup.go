// Package lookup resolves generated addresses to a country name for display.
// Lookups are best effort: callers normally go through CountryOrUnknown.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Unknown is shown when no country could be determined.
	Unknown = "Unknown"

	DefaultBaseURL = "https://api.iplocation.net/"
	DefaultTimeout = 5 * time.Second
)

// ErrNoCountry is returned when the service answered without a country.
var ErrNoCountry = errors.New("lookup: no country in response")

// Lookup maps an address to a country name.
type Lookup interface {
	Country(ctx context.Context, addr string) (string, error)
}

// CountryOrUnknown calls l and returns Unknown on any error or empty answer.
func CountryOrUnknown(ctx context.Context, l Lookup, addr string) string {
	if l == nil {
		return Unknown
	}
	country, err := l.Country(ctx, addr)
	if err != nil || strings.TrimSpace(country) == "" {
		return Unknown
	}
	return country
}

// Static answers every lookup with the same country.
type Static string

// Country implements Lookup.
func (s Static) Country(context.Context, string) (string, error) {
	if s == "" {
		return "", ErrNoCountry
	}
	return string(s), nil
}

// HTTPClient queries a JSON endpoint of the form <base>?ip=<addr> that
// answers {"country_name": "..."}.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewHTTPClient creates a client. rateLimit is in requests per second, zero
// disables throttling; timeout bounds every call and defaults to 5s.
func NewHTTPClient(baseURL string, rateLimit float64, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), int(rateLimit)+1)
	}

	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		limiter:    limiter,
		timeout:    timeout,
	}
}

type countryResponse struct {
	CountryName string `json:"country_name"`
}

// Country implements Lookup.
func (c *HTTPClient) Country(ctx context.Context, addr string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("ip", addr)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup %s: unexpected status %d", addr, resp.StatusCode)
	}

	var body countryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("lookup %s: decode: %w", addr, err)
	}
	if body.CountryName == "" {
		return "", ErrNoCountry
	}
	return body.CountryName, nil
}

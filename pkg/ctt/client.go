// Package ctt is a client for the CTT postal code lookup service
// (cttcodigopostal.pt).
package ctt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public CTT API root.
const DefaultBaseURL = "https://www.cttcodigopostal.pt/api/v1"

const defaultTimeout = 15 * time.Second

// Client looks up postal codes against the CTT service.
type Client interface {
	Lookup(ctx context.Context, apiKey, postalCode string) ([]Address, error)
}

// Address is one entry of a lookup response. A postal code may map to
// several streets, so the service returns a list.
type Address struct {
	PostalCode       string     `json:"codigo-postal"`
	Street           string     `json:"morada"`
	Locality         string     `json:"localidade"`
	Parish           string     `json:"freguesia"`
	Concelho         string     `json:"concelho"`
	Distrito         string     `json:"distrito"`
	PostalDesignator string     `json:"designacao-postal"`
	Latitude         Coordinate `json:"latitude"`
	Longitude        Coordinate `json:"longitude"`
}

// Coordinate holds a latitude or longitude as sent by the service, which
// uses either JSON numbers or strings.
type Coordinate string

// UnmarshalJSON accepts a number, a string or null.
func (c *Coordinate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Coordinate(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return eris.Wrap(err, "ctt: decode coordinate")
	}
	*c = Coordinate(n.String())
	return nil
}

// Options configures the client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls; zero or less means no limit.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a CTT API client.
func NewClient(opts Options) Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &httpClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *httpClient) Lookup(ctx context.Context, apiKey, postalCode string) ([]Address, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "ctt: rate limiter wait")
	}

	u := c.baseURL + "/" + url.PathEscape(apiKey) + "/" + url.PathEscape(postalCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ctt: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the key; keep it out of the error text.
		return nil, eris.Errorf("ctt: send request for %s: %v", postalCode, redact(err, apiKey))
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ctt: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("ctt: unexpected status %d for %s", resp.StatusCode, postalCode)
	}

	var addrs []Address
	if err := json.Unmarshal(body, &addrs); err != nil {
		return nil, eris.Wrapf(err, "ctt: decode response for %s", postalCode)
	}
	return addrs, nil
}

func redact(err error, apiKey string) string {
	msg := err.Error()
	if apiKey == "" {
		return msg
	}
	msg = strings.ReplaceAll(msg, url.PathEscape(apiKey), "***")
	return strings.ReplaceAll(msg, apiKey, "***")
}

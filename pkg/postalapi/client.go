// Package postalapi is an HTTP client for the postal code lookup API served
// by `postal-cli serve`.
package postalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postal-cli/internal/model"
)

// DefaultBaseURL is where `postal-cli serve` listens by default.
const DefaultBaseURL = "http://127.0.0.1:5000"

// ErrNotFound is returned by Get when the server has no such postal code.
var ErrNotFound = eris.New("postalapi: postal code not found")

// UpdateResult is the server's reply to an update request.
type UpdateResult struct {
	Message    string `json:"message"`
	Updated    int    `json:"updated"`
	Candidates int    `json:"candidates"`
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client talks to a running lookup service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Bulk updates run synchronously and can take minutes.
		http: &http.Client{Timeout: 30 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ListAll returns every stored record sorted by postal code. It accepts both
// the map and the list response shapes.
func (c *Client) ListAll(ctx context.Context) ([]model.PostalRecord, error) {
	body, err := c.do(ctx, http.MethodGet, "/postal-codes", nil)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var recs []model.PostalRecord
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, eris.Wrap(err, "postalapi: decode list")
		}
		return recs, nil
	}

	var byCode map[string][]*string
	if err := json.Unmarshal(trimmed, &byCode); err != nil {
		return nil, eris.Wrap(err, "postalapi: decode map")
	}
	recs := make([]model.PostalRecord, 0, len(byCode))
	for code, fields := range byCode {
		recs = append(recs, model.PostalRecord{
			PostalCode: code,
			Concelho:   field(fields, 0),
			Distrito:   field(fields, 1),
		})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].PostalCode < recs[j].PostalCode })
	return recs, nil
}

// Get returns one record, or ErrNotFound.
func (c *Client) Get(ctx context.Context, code string) (*model.PostalRecord, error) {
	body, err := c.do(ctx, http.MethodGet, "/postal-codes/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, err
	}
	var rec model.PostalRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, eris.Wrap(err, "postalapi: decode record")
	}
	return &rec, nil
}

// Update asks the server to enrich every incomplete record with apiKey.
func (c *Client) Update(ctx context.Context, apiKey string) (*UpdateResult, error) {
	payload, err := json.Marshal(map[string]string{"api_key": apiKey})
	if err != nil {
		return nil, eris.Wrap(err, "postalapi: marshal request")
	}
	body, err := c.do(ctx, http.MethodPost, "/postal-codes/update", payload)
	if err != nil {
		return nil, err
	}
	var res UpdateResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, eris.Wrap(err, "postalapi: decode update result")
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "postalapi: create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "postalapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "postalapi: read response")
	}

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet && strings.HasPrefix(path, "/postal-codes/") {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, eris.Errorf("postalapi: %s (status %d)", e.Error, resp.StatusCode)
		}
		return nil, eris.Errorf("postalapi: unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func field(fields []*string, i int) string {
	if i >= len(fields) || fields[i] == nil {
		return ""
	}
	return *fields[i]
}

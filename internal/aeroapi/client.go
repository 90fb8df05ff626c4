// Package aeroapi is the flight search data source, backed by FlightAware
// AeroAPI v4.
//
// One Search call is one GET /flights/search request. There are no retries
// here: the job runner decides what to do when a search fails or returns too
// few flights.
package aeroapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/highest-aircraft/internal/apperror"
	"github.com/sakif/highest-aircraft/internal/model"
)

const (
	DefaultBaseURL = "https://aeroapi.flightaware.com/aeroapi"

	defaultTimeout = 30 * time.Second

	// maxBodyBytes caps how much of a response we are willing to read.
	maxBodyBytes = 8 << 20
)

// Client queries AeroAPI for flights above a threshold.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client authenticating with apiKey (sent as x-apikey).
func NewClient(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// WithBaseURL points the client at a different server (tests, proxies).
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Search returns flights whose category metric is above threshold, minus
// any flight whose ident starts with one of excludePrefixes. Results are in
// provider order; ranking is the caller's job.
//
// Threshold units follow the provider: flight level (hundreds of feet) for
// altitude, knots for groundspeed.
func (c *Client) Search(ctx context.Context, category model.Category, threshold int, excludePrefixes []string) ([]model.Flight, error) {
	query, err := searchQuery(category, threshold)
	if err != nil {
		return nil, apperror.DataSource("building query", err)
	}

	flights, err := c.search(ctx, query)
	if err != nil {
		return nil, err
	}

	return excludeByPrefix(flights, excludePrefixes), nil
}

// SearchAboveAltitude is Search for the altitude category.
func (c *Client) SearchAboveAltitude(ctx context.Context, flightLevel int, excludePrefixes []string) ([]model.Flight, error) {
	return c.Search(ctx, model.CategoryAltitude, flightLevel, excludePrefixes)
}

// SearchAboveGroundspeed is Search for the groundspeed category, without
// prefix filtering.
func (c *Client) SearchAboveGroundspeed(ctx context.Context, knots int) ([]model.Flight, error) {
	return c.Search(ctx, model.CategoryGroundspeed, knots, nil)
}

func searchQuery(category model.Category, threshold int) (string, error) {
	switch category {
	case model.CategoryAltitude:
		return fmt.Sprintf("-aboveAltitude %d", threshold), nil
	case model.CategoryGroundspeed:
		return fmt.Sprintf("-aboveGroundspeed %d", threshold), nil
	default:
		return "", fmt.Errorf("unsupported category %q", category)
	}
}

func (c *Client) search(ctx context.Context, query string) ([]model.Flight, error) {
	endpoint := c.baseURL + "/flights/search?" + url.Values{"query": {query}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperror.DataSource("creating request", err)
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.DataSource("requesting flight search", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperror.DataSource("reading response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.DataSource("flight search",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	flights, err := decodeSearchResponse(body)
	if err != nil {
		return nil, apperror.DataSource("decoding response", err)
	}

	c.logger.Debug("flight search completed",
		slog.String("query", query),
		slog.Int("flights", len(flights)),
		slog.Duration("duration", time.Since(start)),
	)

	return flights, nil
}

func excludeByPrefix(flights []model.Flight, prefixes []string) []model.Flight {
	if len(prefixes) == 0 {
		return flights
	}

	kept := flights[:0]
	for _, f := range flights {
		if !hasAnyPrefix(f.Ident, prefixes) {
			kept = append(kept, f)
		}
	}
	return kept
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

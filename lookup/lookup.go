// Package lookup fetches movie metadata from an OMDb-compatible API.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrNoMatch means the service answered but knows no such title.
	ErrNoMatch = errors.New("no movie matched the title")

	// ErrLookup wraps transport and decoding failures.
	ErrLookup = errors.New("movie lookup failed")
)

// Result is the metadata extracted for one title.
type Result struct {
	Title  string
	Year   string
	Rating float64
	Poster string
}

// Client queries the lookup service by title. Requests are throttled so a
// burst of catalog additions stays inside the service's rate limit.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a lookup client. An empty baseURL falls back to the
// public OMDb endpoint; a non-positive rps falls back to 2 requests/s.
func NewClient(baseURL, apiKey string, rps float64) *Client {
	if baseURL == "" {
		baseURL = "https://www.omdbapi.com"
	}
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// omdbResponse mirrors the service's field naming.
type omdbResponse struct {
	Response   string `json:"Response"`
	Error      string `json:"Error"`
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	IMDBRating string `json:"imdbRating"`
	Poster     string `json:"Poster"`
}

// Lookup resolves a title to its metadata.
func (c *Client) Lookup(ctx context.Context, title string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/?t=%s&apikey=%s", c.baseURL, url.QueryEscape(title), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrLookup, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrLookup, resp.StatusCode)
	}

	var parsed omdbResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrLookup, err)
	}
	if parsed.Response != "True" || parsed.Title == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, title)
	}

	return &Result{
		Title:  parsed.Title,
		Year:   parsed.Year,
		Rating: parseRating(parsed.IMDBRating),
		Poster: cleanField(parsed.Poster),
	}, nil
}

// parseRating tolerates the service's "N/A" placeholder.
func parseRating(s string) float64 {
	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return r
}

func cleanField(s string) string {
	if s == "N/A" {
		return ""
	}
	return s
}

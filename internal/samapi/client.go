// Package samapi is the client for the SAM.gov opportunities search API.
// It owns auth injection, per-request rate limiting, retry with exponential
// backoff, and offset pagination, and exposes results as a lazy row-at-a-time
// iterator so callers can stop early without draining every page.
package samapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceradon/samwatch/internal/models"
)

const defaultBaseURL = "https://api.sam.gov/opportunities/v2/search"

// ClientConfig controls transport behavior. Zero values fall back to the
// defaults the upstream API tolerates.
type ClientConfig struct {
	APIKey        string
	APIKeyInQuery bool // send api_key as a query parameter instead of the X-API-Key header
	BaseURL       string
	PageSize      int
	Timeout       time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	RateLimit     float64 // requests per second ceiling
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 4
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 1500 * time.Millisecond
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 2.0
	}
	return c
}

// StatusError is a permanent upstream failure (4xx). It signals a
// configuration or auth problem and is never retried.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sam api returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	config  ClientConfig
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(config ClientConfig) *Client {
	config = config.withDefaults()
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// searchResponse is the response envelope. totalRecords may be absent, in
// which case termination relies solely on an empty page.
type searchResponse struct {
	OpportunitiesData []models.RawRecord `json:"opportunitiesData"`
	TotalRecords      *int               `json:"totalRecords"`
}

// request performs one GET with rate limiting and bounded retries. Transient
// conditions (request errors, timeouts, 5xx, undecodable bodies) are retried
// with backoffBase * 2^(attempt-1) sleeps; 4xx surfaces immediately.
func (c *Client) request(ctx context.Context, params url.Values) (*searchResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries+1; attempt++ {
		if attempt > 1 {
			backoff := c.config.BackoffBase * (1 << (attempt - 2))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		payload, err := c.doRequest(ctx, params)
		if err == nil {
			return payload, nil
		}
		if permanent(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("sam api request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) doRequest(ctx context.Context, params url.Values) (*searchResponse, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	if c.config.APIKeyInQuery {
		query.Set("api_key", c.config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if !c.config.APIKeyInQuery {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server error %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &payload, nil
}

func permanent(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

// Search starts a new paginated search from offset 0. Each call owns
// independent pagination state: abandoning one iterator never affects a
// later Search.
func (c *Client) Search(ctx context.Context, params url.Values) *Search {
	return &Search{
		client: c,
		ctx:    ctx,
		params: params,
		total:  -1,
	}
}

// Search iterates raw opportunity records one at a time, fetching a page
// only when the previous one is exhausted:
//
//	it := client.Search(ctx, params)
//	for it.Next() {
//	    handle(it.Record())
//	}
//	if err := it.Err(); err != nil { ... }
type Search struct {
	client *Client
	ctx    context.Context
	params url.Values

	offset int
	total  int // -1 until the API reports totalRecords
	page   []models.RawRecord
	idx    int
	done   bool
	err    error
}

// Next advances to the next record, fetching the next page when needed.
// It returns false when the sequence is exhausted or a fetch failed; check
// Err afterwards.
func (s *Search) Next() bool {
	if s.err != nil {
		return false
	}
	if s.idx < len(s.page) {
		s.idx++
		return true
	}
	if s.done {
		return false
	}

	pageParams := url.Values{}
	for k, v := range s.params {
		pageParams[k] = v
	}
	pageParams.Set("limit", fmt.Sprint(s.client.config.PageSize))
	pageParams.Set("offset", fmt.Sprint(s.offset))

	payload, err := s.client.request(s.ctx, pageParams)
	if err != nil {
		s.err = err
		s.done = true
		return false
	}

	if s.total < 0 && payload.TotalRecords != nil {
		s.total = *payload.TotalRecords
	}
	s.page = payload.OpportunitiesData
	s.idx = 0
	if len(s.page) == 0 {
		s.done = true
		return false
	}

	s.offset += s.client.config.PageSize
	if s.total >= 0 && s.offset >= s.total {
		s.done = true
	}

	s.idx = 1
	return true
}

// Record returns the record Next advanced to. Only valid after Next
// returned true.
func (s *Search) Record() models.RawRecord {
	return s.page[s.idx-1]
}

// Err reports the failure that terminated iteration, if any.
func (s *Search) Err() error {
	return s.err
}

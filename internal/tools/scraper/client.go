// Package scraper wraps the Firecrawl v2 API and exposes it to LLM agents
// as function tools. Firecrawl publishes no Go SDK, so the client speaks
// the REST API directly: synchronous endpoints for scrape and search, and
// job polling for the async crawl and extract endpoints.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"conductor/internal/adapters/config"
	"conductor/internal/metrics"
	"conductor/pkg/errors"
	"conductor/pkg/logger"
	"conductor/pkg/retry"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultCrawlTimeout = 30 * time.Minute
)

// Client is a rate-limited Firecrawl v2 API client.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	limiter      *rate.Limiter
	retry        retry.Policy
	pollInterval time.Duration
	log          *logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithPollInterval overrides the crawl/extract polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// NewClient creates a Firecrawl client from configuration.
func NewClient(cfg config.FirecrawlConfig, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "FIRECRAWL_API_KEY is not set")
	}

	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 60
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		http:         &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		retry:        retry.DefaultPolicy(),
		pollInterval: defaultPollInterval,
		log:          logger.Get().With("component", "firecrawl"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ScrapeOptions tune a single-page scrape.
type ScrapeOptions struct {
	Formats         []string `json:"formats,omitempty"`
	OnlyMainContent bool     `json:"onlyMainContent,omitempty"`
	IncludeTags     []string `json:"includeTags,omitempty"`
	ExcludeTags     []string `json:"excludeTags,omitempty"`
	WaitForMs       int      `json:"waitFor,omitempty"`
}

// SearchRequest describes a web search.
type SearchRequest struct {
	Query   string   `json:"query"`
	Limit   int      `json:"limit,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// CrawlRequest describes a site crawl job.
type CrawlRequest struct {
	URL               string   `json:"url"`
	Limit             int      `json:"limit,omitempty"`
	IncludePaths      []string `json:"includePaths,omitempty"`
	ExcludePaths      []string `json:"excludePaths,omitempty"`
	MaxDiscoveryDepth int      `json:"maxDiscoveryDepth,omitempty"`
}

// ExtractRequest describes a structured extraction job over one or more
// URLs. Either Prompt or Schema must be set.
type ExtractRequest struct {
	URLs   []string               `json:"urls"`
	Prompt string                 `json:"prompt,omitempty"`
	Schema map[string]interface{} `json:"schema,omitempty"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// Scrape fetches a single page and returns the Firecrawl data document
// (markdown, html, links, metadata depending on requested formats).
func (c *Client) Scrape(ctx context.Context, pageURL string, opts ScrapeOptions) (map[string]interface{}, error) {
	if pageURL == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "url is required")
	}
	if len(opts.Formats) == 0 {
		opts.Formats = []string{"markdown"}
	}

	payload := map[string]interface{}{
		"url":             pageURL,
		"formats":         opts.Formats,
		"onlyMainContent": opts.OnlyMainContent,
	}
	if len(opts.IncludeTags) > 0 {
		payload["includeTags"] = opts.IncludeTags
	}
	if len(opts.ExcludeTags) > 0 {
		payload["excludeTags"] = opts.ExcludeTags
	}
	if opts.WaitForMs > 0 {
		payload["waitFor"] = opts.WaitForMs
	}

	resp, err := c.post(ctx, "/scrape", payload)
	if err != nil {
		return nil, err
	}
	return decodeData(resp)
}

// Search runs a web search, returning result documents.
func (c *Client) Search(ctx context.Context, req SearchRequest) (map[string]interface{}, error) {
	if req.Query == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "query is required")
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	resp, err := c.post(ctx, "/search", req)
	if err != nil {
		return nil, err
	}
	return decodeData(resp)
}

// Crawl starts a crawl job and polls until it completes, returning the
// final payload with all crawled pages.
func (c *Client) Crawl(ctx context.Context, req CrawlRequest) (map[string]interface{}, error) {
	if req.URL == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "url is required")
	}

	start, err := c.post(ctx, "/crawl", req)
	if err != nil {
		return nil, err
	}
	if start.ID == "" {
		return nil, errors.Wrap(errors.ErrInternal, "firecrawl: crawl started without a job id")
	}

	c.log.Infow("Crawl job started", "job_id", start.ID, "url", req.URL)
	return c.pollJob(ctx, "/crawl/status?id="+start.ID, defaultCrawlTimeout)
}

// Extract starts a structured extraction job and polls until it completes.
func (c *Client) Extract(ctx context.Context, req ExtractRequest) (map[string]interface{}, error) {
	if len(req.URLs) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "at least one url is required")
	}
	if req.Prompt == "" && req.Schema == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "prompt or schema is required")
	}

	start, err := c.post(ctx, "/extract", req)
	if err != nil {
		return nil, err
	}
	if start.ID == "" {
		return nil, errors.Wrap(errors.ErrInternal, "firecrawl: extract started without a job id")
	}

	c.log.Infow("Extract job started", "job_id", start.ID, "urls", len(req.URLs))
	return c.pollJob(ctx, "/extract/status?id="+start.ID, 15*time.Minute)
}

// pollJob polls an async job status endpoint until the job completes,
// fails, or the deadline passes.
func (c *Client) pollJob(ctx context.Context, path string, timeout time.Duration) (map[string]interface{}, error) {
	deadline := time.Now().Add(timeout)

	for {
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(errors.ErrTimeout, "firecrawl: job %s did not complete within %s", path, timeout)
		}

		status, err := c.get(ctx, path)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case "completed":
			return decodeEnvelope(status)
		case "failed", "error", "cancelled":
			return nil, errors.Wrapf(errors.ErrInternal, "firecrawl: job ended with status %s: %s", status.Status, status.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*apiResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode firecrawl request")
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *Client) get(ctx context.Context, path string) (*apiResponse, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (*apiResponse, error) {
	var out *apiResponse

	start := time.Now()
	attempt := 0

	err := c.retry.Execute(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.RecordRetry("firecrawl")
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return errors.Wrap(err, "build firecrawl request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrap(errors.ErrTimeout, err.Error())
			}
			return errors.Wrap(errors.ErrUnavailable, err.Error())
		}
		defer resp.Body.Close()

		if err := translateStatus(resp); err != nil {
			return err
		}

		var decoded apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return errors.Wrap(err, "decode firecrawl response")
		}
		if !decoded.Success {
			return errors.Wrapf(errors.ErrInternal, "firecrawl: request failed: %s", decoded.Error)
		}

		out = &decoded
		return nil
	})

	metrics.RecordRemoteCall("firecrawl", operationLabel(path), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// operationLabel strips query strings so job polls share one metric label.
func operationLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.TrimPrefix(path, "/")
}

// decodeData unwraps the "data" document of a successful response.
func decodeData(resp *apiResponse) (map[string]interface{}, error) {
	if len(resp.Data) == 0 {
		return map[string]interface{}{}, nil
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(resp.Data, &asObject); err == nil {
		return asObject, nil
	}

	// Some endpoints return data as an array of documents.
	var asList []interface{}
	if err := json.Unmarshal(resp.Data, &asList); err == nil {
		return map[string]interface{}{"results": asList}, nil
	}

	return nil, errors.Wrap(errors.ErrInternal, "firecrawl: unexpected data shape")
}

// decodeEnvelope returns the completed job payload including its data.
func decodeEnvelope(resp *apiResponse) (map[string]interface{}, error) {
	data, err := decodeData(resp)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status": resp.Status,
		"data":   data,
	}, nil
}

// translateStatus maps Firecrawl HTTP statuses onto the error taxonomy.
func translateStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("%.200s", strings.TrimSpace(string(detail)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Wrapf(errors.ErrUnauthorized, "firecrawl: %s", msg)
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(errors.ErrNotFound, "firecrawl: %s", msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrRateLimited, "firecrawl: %s", msg)
	case resp.StatusCode >= 500:
		return errors.Wrapf(errors.ErrUnavailable, "firecrawl: status %d: %s", resp.StatusCode, msg)
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "firecrawl: status %d: %s", resp.StatusCode, msg)
	}
}

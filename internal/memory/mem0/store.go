// Package mem0 implements memory.Store against the Mem0 managed memory
// API. There is no official Go SDK, so the adapter speaks the REST API
// directly and routes every call through the shared retry policy.
package mem0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"conductor/internal/adapters/config"
	"conductor/internal/memory"
	"conductor/internal/metrics"
	"conductor/pkg/errors"
	"conductor/pkg/logger"
	"conductor/pkg/retry"
)

// Store is the Mem0-backed memory.Store.
type Store struct {
	baseURL   string
	apiKey    string
	orgID     string
	projectID string
	client    *http.Client
	retry     retry.Policy
	log       *logger.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Store) { s.retry = p }
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// New creates a Mem0 store from configuration.
func New(cfg config.Mem0Config, opts ...Option) (*Store, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "MEM0_API_KEY is not set")
	}

	s := &Store{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		orgID:     cfg.OrgID,
		projectID: cfg.ProjectID,
		client:    &http.Client{Timeout: cfg.Timeout},
		retry:     retry.DefaultPolicy(),
		log:       logger.Get().With("component", "mem0"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type mem0Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type addRequest struct {
	Messages  []mem0Message          `json:"messages"`
	UserID    string                 `json:"user_id"`
	AppID     string                 `json:"app_id,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Source    string                 `json:"source,omitempty"`
	OrgID     string                 `json:"org_id,omitempty"`
	ProjectID string                 `json:"project_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	Version   string                 `json:"output_format"`
}

type searchRequest struct {
	Query     string                 `json:"query"`
	UserID    string                 `json:"user_id,omitempty"`
	Limit     int                    `json:"limit"`
	Filters   map[string]interface{} `json:"filters,omitempty"`
	OrgID     string                 `json:"org_id,omitempty"`
	ProjectID string                 `json:"project_id,omitempty"`
}

type mem0Record struct {
	ID        string                 `json:"id"`
	Memory    string                 `json:"memory"`
	UserID    string                 `json:"user_id"`
	AppID     string                 `json:"app_id"`
	AgentID   string                 `json:"agent_id"`
	Metadata  map[string]interface{} `json:"metadata"`
	Tags      []string               `json:"tags"`
	Score     float64                `json:"score"`
	CreatedAt time.Time              `json:"created_at"`
}

type resultsEnvelope struct {
	Results []mem0Record `json:"results"`
}

// Add implements memory.Store.
func (s *Store) Add(ctx context.Context, req memory.AddRequest) (*memory.Record, error) {
	if req.UserID == "" || req.Text == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "user_id and text are required")
	}

	body := addRequest{
		Messages:  []mem0Message{{Role: "user", Content: req.Text}},
		UserID:    req.UserID,
		AppID:     req.AppID,
		AgentID:   req.AgentID,
		RunID:     req.RunID,
		Source:    req.Source,
		OrgID:     s.orgID,
		ProjectID: s.projectID,
		Metadata:  req.Metadata,
		Tags:      req.Tags,
		Version:   "v1.1",
	}

	var env resultsEnvelope
	if err := s.do(ctx, "add", http.MethodPost, "/v1/memories/", body, &env); err != nil {
		return nil, err
	}

	record := memory.Record{
		UserID:    req.UserID,
		AppID:     req.AppID,
		AgentID:   req.AgentID,
		Text:      req.Text,
		Metadata:  req.Metadata,
		Tags:      req.Tags,
		CreatedAt: time.Now().UTC(),
	}
	if len(env.Results) > 0 {
		first := env.Results[0]
		record.ID = first.ID
		if first.Memory != "" {
			record.Text = first.Memory
		}
		if !first.CreatedAt.IsZero() {
			record.CreatedAt = first.CreatedAt
		}
	}

	s.log.Debugw("Memory stored", "user_id", req.UserID, "memory_id", record.ID)
	return &record, nil
}

// Search implements memory.Store.
func (s *Store) Search(ctx context.Context, req memory.SearchRequest) ([]memory.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = memory.DefaultSearchLimit
	}

	body := searchRequest{
		Query:     req.Query,
		UserID:    req.UserID,
		Limit:     limit,
		Filters:   req.Filters,
		OrgID:     s.orgID,
		ProjectID: s.projectID,
	}

	var env resultsEnvelope
	if err := s.do(ctx, "search", http.MethodPost, "/v1/memories/search/", body, &env); err != nil {
		return nil, err
	}

	results := make([]memory.SearchResult, 0, len(env.Results))
	for _, rec := range env.Results {
		results = append(results, memory.SearchResult{
			Record: toRecord(rec),
			Score:  rec.Score,
		})
	}
	return results, nil
}

// Delete implements memory.Store.
func (s *Store) Delete(ctx context.Context, memoryID string) error {
	if memoryID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "memory id is required")
	}
	return s.do(ctx, "delete", http.MethodDelete, "/v1/memories/"+url.PathEscape(memoryID)+"/", nil, nil)
}

// List implements memory.Store.
func (s *Store) List(ctx context.Context, userID string) ([]memory.Record, error) {
	if userID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "user id is required")
	}

	var env resultsEnvelope
	path := "/v1/memories/?user_id=" + url.QueryEscape(userID)
	if err := s.do(ctx, "list", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}

	records := make([]memory.Record, 0, len(env.Results))
	for _, rec := range env.Results {
		records = append(records, toRecord(rec))
	}
	return records, nil
}

func toRecord(rec mem0Record) memory.Record {
	return memory.Record{
		ID:        rec.ID,
		UserID:    rec.UserID,
		AppID:     rec.AppID,
		AgentID:   rec.AgentID,
		Text:      rec.Memory,
		Metadata:  rec.Metadata,
		Tags:      rec.Tags,
		CreatedAt: rec.CreatedAt,
	}
}

// do performs one API call under the retry policy, decoding a successful
// response into out when out is non-nil.
func (s *Store) do(ctx context.Context, op, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode mem0 request")
		}
	}

	start := time.Now()
	attempt := 0

	err := s.retry.Execute(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.RecordRetry("mem0")
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
		if err != nil {
			return errors.Wrap(err, "build mem0 request")
		}
		req.Header.Set("Authorization", "Token "+s.apiKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.client.Do(req)
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

		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode mem0 response")
		}
		return nil
	})

	metrics.RecordRemoteCall("mem0", op, time.Since(start), err)
	return err
}

// translateStatus maps Mem0 HTTP statuses onto the error taxonomy: auth
// and not-found are final, rate limits and server errors are retryable.
func translateStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail := readDetail(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Wrapf(errors.ErrUnauthorized, "mem0: %s", detail)
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(errors.ErrNotFound, "mem0: %s", detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrRateLimited, "mem0: %s", detail)
	case resp.StatusCode >= 500:
		return errors.Wrapf(errors.ErrUnavailable, "mem0: status %d: %s", resp.StatusCode, detail)
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "mem0: status %d: %s", resp.StatusCode, detail)
	}
}

func readDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil || len(data) == 0 {
		return "no detail"
	}

	var parsed struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &parsed) == nil {
		if parsed.Detail != "" {
			return parsed.Detail
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return fmt.Sprintf("%.200s", strings.TrimSpace(string(data)))
}

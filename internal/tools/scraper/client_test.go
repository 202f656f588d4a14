package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/adapters/config"
	"conductor/internal/tools"
	"conductor/pkg/errors"
	"conductor/pkg/retry"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.FirecrawlConfig{
		APIKey:         "fc-test",
		BaseURL:        srv.URL,
		Timeout:        5 * time.Second,
		RequestsPerMin: 6000,
	},
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
		WithPollInterval(time.Millisecond),
	)
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.FirecrawlConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestClient_Scrape(t *testing.T) {
	t.Run("returns page data", func(t *testing.T) {
		var gotBody map[string]interface{}
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/scrape", r.URL.Path)
			require.Equal(t, "Bearer fc-test", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"markdown": "# Hello"},
			})
		}))

		data, err := client.Scrape(context.Background(), "https://example.com", ScrapeOptions{})
		require.NoError(t, err)

		assert.Equal(t, "https://example.com", gotBody["url"])
		assert.Equal(t, []interface{}{"markdown"}, gotBody["formats"])
		assert.Equal(t, "# Hello", data["markdown"])
	})

	t.Run("rejects empty url", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		}))
		_, err := client.Scrape(context.Background(), "", ScrapeOptions{})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("auth failure is final", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}))

		_, err := client.Scrape(context.Background(), "https://example.com", ScrapeOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrUnauthorized)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"markdown": "ok"},
			})
		}))

		data, err := client.Scrape(context.Background(), "https://example.com", ScrapeOptions{})
		require.NoError(t, err)
		assert.Equal(t, "ok", data["markdown"])
		assert.Equal(t, int32(3), calls.Load())
	})
}

func TestClient_Search(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)

		var body SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 5, body.Limit) // default applied

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"web": []interface{}{map[string]interface{}{"url": "https://go.dev", "title": "Go"}},
			},
		})
	}))

	data, err := client.Search(context.Background(), SearchRequest{Query: "golang"})
	require.NoError(t, err)
	assert.NotNil(t, data["web"])
}

func TestClient_Crawl(t *testing.T) {
	t.Run("polls job to completion", func(t *testing.T) {
		var statusCalls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/crawl":
				json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "id": "job-1"})
			case "/crawl/status":
				require.Equal(t, "job-1", r.URL.Query().Get("id"))
				if statusCalls.Add(1) < 3 {
					json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "status": "scraping"})
					return
				}
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": true,
					"status":  "completed",
					"data":    []interface{}{map[string]interface{}{"markdown": "page"}},
				})
			default:
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
		}))

		result, err := client.Crawl(context.Background(), CrawlRequest{URL: "https://example.com", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, "completed", result["status"])
		assert.Equal(t, int32(3), statusCalls.Load())
	})

	t.Run("failed job surfaces error", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/crawl":
				json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "id": "job-2"})
			case "/crawl/status":
				json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "status": "failed", "error": "robots.txt"})
			}
		}))

		_, err := client.Crawl(context.Background(), CrawlRequest{URL: "https://example.com"})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInternal)
		assert.Contains(t, err.Error(), "robots.txt")
	})

	t.Run("cancellation aborts polling", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/crawl":
				json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "id": "job-3"})
			case "/crawl/status":
				cancel()
				json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "status": "scraping"})
			}
		}))

		_, err := client.Crawl(ctx, CrawlRequest{URL: "https://example.com"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClient_Extract(t *testing.T) {
	t.Run("requires prompt or schema", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		}))

		_, err := client.Extract(context.Background(), ExtractRequest{URLs: []string{"https://example.com"}})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("completes extraction job", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/extract":
				json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "id": "ex-1"})
			case "/extract/status":
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": true,
					"status":  "completed",
					"data":    map[string]interface{}{"title": "Example"},
				})
			}
		}))

		result, err := client.Extract(context.Background(), ExtractRequest{
			URLs:   []string{"https://example.com"},
			Prompt: "extract the page title",
		})
		require.NoError(t, err)

		data, ok := result["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "Example", data["title"])
	})
}

func TestRegister(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	reg := tools.NewRegistry()
	require.NoError(t, Register(reg, client))

	assert.Equal(t, []string{"crawl_site", "extract_structured", "scrape_url", "web_search"}, reg.List())
}

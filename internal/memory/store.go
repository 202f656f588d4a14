// Package memory defines the long-term memory contract shared by the
// remote Mem0 adapter and the local Redis-backed store.
package memory

import (
	"context"
	"time"
)

// Record is one stored memory.
type Record struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	AppID     string                 `json:"app_id,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Text      string                 `json:"text"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// SearchResult pairs a record with its relevance score in [0, 1].
type SearchResult struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// AddRequest carries the fields for storing a new memory. UserID and Text
// are required; everything else is optional scoping.
type AddRequest struct {
	UserID   string
	Text     string
	Metadata map[string]interface{}
	Tags     []string
	AppID    string
	AgentID  string
	RunID    string
	Source   string
}

// SearchRequest carries semantic search parameters. Limit <= 0 takes the
// store default of 10.
type SearchRequest struct {
	UserID  string
	Query   string
	Limit   int
	Filters map[string]interface{}
}

// DefaultSearchLimit bounds search results when the caller does not.
const DefaultSearchLimit = 10

// Store is the long-term memory interface exposed to the orchestrator and
// the agent-facing memory tools.
//
// Implementations translate their transport failures into the pkg/errors
// sentinels: ErrUnauthorized and ErrNotFound are final, ErrRateLimited,
// ErrTimeout and ErrUnavailable are retryable.
type Store interface {
	// Add stores a memory and returns the stored record.
	Add(ctx context.Context, req AddRequest) (*Record, error)

	// Search returns up to Limit records relevant to the query, most
	// relevant first.
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)

	// Delete removes a memory by ID.
	Delete(ctx context.Context, memoryID string) error

	// List returns all records stored for a user.
	List(ctx context.Context, userID string) ([]Record, error)
}

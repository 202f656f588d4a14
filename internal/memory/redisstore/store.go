// Package redisstore implements memory.Store on Redis for local and dev
// deployments where the managed Mem0 service is not configured. Relevance
// is token overlap, not semantic search, which is acceptable for the small
// memory sets of a single developer machine.
package redisstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"conductor/internal/adapters/redis"
	"conductor/internal/memory"
	"conductor/pkg/errors"
)

const (
	recordKeyPrefix = "memory:rec:"
	userKeyPrefix   = "memory:user:"
)

// Store is the Redis-backed memory.Store.
type Store struct {
	client *redis.Client
}

// New creates a Redis memory store.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Add implements memory.Store.
func (s *Store) Add(ctx context.Context, req memory.AddRequest) (*memory.Record, error) {
	if req.UserID == "" || req.Text == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "user_id and text are required")
	}

	record := memory.Record{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		AppID:     req.AppID,
		AgentID:   req.AgentID,
		Text:      req.Text,
		Metadata:  req.Metadata,
		Tags:      req.Tags,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.client.Set(ctx, recordKeyPrefix+record.ID, record, 0); err != nil {
		return nil, errors.Wrap(err, "store memory record")
	}
	if err := s.client.Client().SAdd(ctx, userKeyPrefix+req.UserID, record.ID).Err(); err != nil {
		return nil, errors.Wrap(err, "index memory record")
	}

	return &record, nil
}

// Search implements memory.Store.
func (s *Store) Search(ctx context.Context, req memory.SearchRequest) ([]memory.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = memory.DefaultSearchLimit
	}

	records, err := s.List(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	results := make([]memory.SearchResult, 0, len(records))
	for _, rec := range records {
		score := overlapScore(req.Query, rec.Text)
		if score > 0 {
			results = append(results, memory.SearchResult{Record: rec, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete implements memory.Store.
func (s *Store) Delete(ctx context.Context, memoryID string) error {
	if memoryID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "memory id is required")
	}

	var record memory.Record
	if err := s.client.Get(ctx, recordKeyPrefix+memoryID, &record); err != nil {
		if errors.Is(err, goredis.Nil) {
			return errors.Wrapf(errors.ErrNotFound, "memory %s", memoryID)
		}
		return errors.Wrap(err, "load memory record")
	}

	if err := s.client.Delete(ctx, recordKeyPrefix+memoryID); err != nil {
		return errors.Wrap(err, "delete memory record")
	}
	if err := s.client.Client().SRem(ctx, userKeyPrefix+record.UserID, memoryID).Err(); err != nil {
		return errors.Wrap(err, "unindex memory record")
	}
	return nil
}

// List implements memory.Store.
func (s *Store) List(ctx context.Context, userID string) ([]memory.Record, error) {
	if userID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "user id is required")
	}

	ids, err := s.client.Client().SMembers(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list memory index")
	}

	records := make([]memory.Record, 0, len(ids))
	for _, id := range ids {
		var rec memory.Record
		if err := s.client.Get(ctx, recordKeyPrefix+id, &rec); err != nil {
			if errors.Is(err, goredis.Nil) {
				// Index entry outlived its record; skip it.
				continue
			}
			return nil, errors.Wrap(err, "load memory record")
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	return records, nil
}

// overlapScore returns the fraction of query tokens present in text.
func overlapScore(query, text string) float64 {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}

	textTokens := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		textTokens[tok] = struct{}{}
	}

	matched := 0
	for _, tok := range queryTokens {
		if _, ok := textTokens[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

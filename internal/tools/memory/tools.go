// Package memory exposes the long-term memory store to LLM agents as
// function tools.
package memory

import (
	"time"

	"google.golang.org/adk/tool"

	mem "conductor/internal/memory"
	"conductor/internal/tools"
	"conductor/pkg/errors"
	"conductor/pkg/logger"
)

// Register adds the save_memory and search_memory tools backed by store.
func Register(reg *tools.Registry, store mem.Store) error {
	log := logger.Get().With("component", "memory_tools")

	err := reg.RegisterFunc(tools.Definition{
		Name:        "save_memory",
		Description: "Save a fact about the user to long-term memory. Use for preferences, goals and durable context worth recalling in later sessions.",
		Category:    "memory",
	}, func(ctx tool.Context, args map[string]interface{}) (map[string]interface{}, error) {
		userID, _ := args["user_id"].(string)
		text, _ := args["text"].(string)
		if userID == "" || text == "" {
			return nil, errors.Wrap(errors.ErrInvalidInput, "save_memory: user_id and text are required")
		}

		req := mem.AddRequest{UserID: userID, Text: text, Source: "agent"}
		if agentID, ok := args["agent_id"].(string); ok {
			req.AgentID = agentID
		}
		if tags, ok := args["tags"].([]interface{}); ok {
			for _, tag := range tags {
				if s, ok := tag.(string); ok {
					req.Tags = append(req.Tags, s)
				}
			}
		}

		rec, err := store.Add(ctx, req)
		if err != nil {
			log.Errorw("save_memory failed", "user_id", userID, "error", err)
			return nil, errors.Wrap(err, "save_memory")
		}

		return map[string]interface{}{
			"memory_id": rec.ID,
			"saved":     true,
		}, nil
	})
	if err != nil {
		return err
	}

	return reg.RegisterFunc(tools.Definition{
		Name:        "search_memory",
		Description: "Search the user's long-term memory for facts relevant to a query. Returns the most relevant memories with scores.",
		Category:    "memory",
	}, func(ctx tool.Context, args map[string]interface{}) (map[string]interface{}, error) {
		userID, _ := args["user_id"].(string)
		query, _ := args["query"].(string)
		if userID == "" || query == "" {
			return nil, errors.Wrap(errors.ErrInvalidInput, "search_memory: user_id and query are required")
		}

		limit := 0
		if raw, ok := args["limit"].(float64); ok {
			limit = int(raw)
		}

		results, err := store.Search(ctx, mem.SearchRequest{UserID: userID, Query: query, Limit: limit})
		if err != nil {
			log.Errorw("search_memory failed", "user_id", userID, "error", err)
			return nil, errors.Wrap(err, "search_memory")
		}

		memories := make([]map[string]interface{}, 0, len(results))
		for _, res := range results {
			memories = append(memories, map[string]interface{}{
				"memory_id":  res.Record.ID,
				"text":       res.Record.Text,
				"score":      res.Score,
				"created_at": res.Record.CreatedAt.Format(time.RFC3339),
			})
		}

		return map[string]interface{}{
			"memories": memories,
			"count":    len(memories),
		}, nil
	})
}

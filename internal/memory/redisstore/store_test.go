package redisstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlapScore(t *testing.T) {
	t.Run("full overlap", func(t *testing.T) {
		assert.Equal(t, 1.0, overlapScore("go backend", "I prefer Go for backend work"))
	})

	t.Run("partial overlap", func(t *testing.T) {
		assert.InDelta(t, 0.5, overlapScore("go frontend", "Go is my language"), 1e-9)
	})

	t.Run("no overlap", func(t *testing.T) {
		assert.Equal(t, 0.0, overlapScore("rust", "I prefer Go"))
	})

	t.Run("empty query", func(t *testing.T) {
		assert.Equal(t, 0.0, overlapScore("", "anything"))
	})

	t.Run("punctuation and case ignored", func(t *testing.T) {
		assert.Equal(t, 1.0, overlapScore("YAML", "User dislikes yaml, prefers TOML."))
	})
}

package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopCache(t *testing.T) {
	c := NewNoopCache()
	ctx := context.Background()

	assert.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, 0))

	var dest map[string]int
	assert.ErrorIs(t, c.Get(ctx, "k", &dest), ErrCacheMiss)
	assert.NoError(t, c.Delete(ctx, "k"))
	assert.NoError(t, c.DeletePattern(ctx, "k*"))
}

func TestTestPaperKey(t *testing.T) {
	assert.Equal(t, "test:42:paper", TestPaperKey(42))
}

package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedgate/internal/activity"
	"fedgate/internal/logger"
)

func TestCache(t *testing.T) {
	c, err := NewCache(context.Background(), time.Minute, 1024, logger.NewNopLogger())
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("https://example.com/users/a")
	assert.False(t, ok)

	actor := &activity.Actor{
		ID:        "https://example.com/users/a",
		PublicKey: &activity.PublicKey{ID: "https://example.com/users/a#main-key", PublicKeyPem: testPEM},
	}
	c.Set(actor.ID, actor)
	assert.Equal(t, 1, c.Len())

	got, ok := c.Get(actor.ID)
	require.True(t, ok)
	assert.Equal(t, actor, got)

	c.Delete(actor.ID)
	_, ok = c.Get(actor.ID)
	assert.False(t, ok)

	// Deleting a missing key is harmless
	c.Delete("https://example.com/none")
}

func TestNewCache_RejectsNonPositiveTTL(t *testing.T) {
	_, err := NewCache(context.Background(), 0, 0, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	assert.NotPanics(t, func() {
		c.Set("x", &activity.Actor{ID: "x"})
		_, ok := c.Get("x")
		assert.False(t, ok)
		c.Delete("x")
		assert.Equal(t, 0, c.Len())
		assert.NoError(t, c.Close())
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "https://example.com/users/a")
	assert.ErrorIs(t, err, ErrNotFound)

	actor := &activity.Actor{ID: "https://example.com/users/a"}
	require.NoError(t, s.Put(ctx, actor.ID, actor))

	got, err := s.Get(ctx, actor.ID)
	require.NoError(t, err)
	assert.Same(t, actor, got)
	assert.Equal(t, 1, s.Len())
}

func TestKVKey(t *testing.T) {
	key := kvKey("https://example.com/users/a?x=1#main-key")
	assert.Regexp(t, `^[-_A-Za-z0-9]+$`, key)
	assert.NotEqual(t, kvKey("https://example.com/a"), kvKey("https://example.com/b"))
}

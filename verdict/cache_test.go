package verdict

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purchasekit/keyvalue"
	"purchasekit/keyvalue/memory"
)

// countingStore wraps a keyvalue.Store and counts writes, so tests can
// observe that idempotent records do not touch storage again.
type countingStore struct {
	keyvalue.Store
	mu   sync.Mutex
	sets int
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Store.Set(ctx, key, value)
}

func (c *countingStore) Sets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func TestCacheHas(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("no verdict on file", func(t *testing.T) {
		c := NewCache(memory.New(), FallbackDays(30), nil)
		assert.False(t, c.Has(ctx, "p1", now))
	})

	t.Run("revocation wins regardless of policy", func(t *testing.T) {
		c := NewCache(memory.New(), FallbackDays(365), nil)
		require.NoError(t, c.Record(ctx, "p1", Verdict{ComputedAt: now, Active: false, Authoritative: true}))
		assert.False(t, c.Has(ctx, "p1", now))
	})

	t.Run("fresh authoritative verdict entitles", func(t *testing.T) {
		c := NewCache(memory.New(), FallbackOff(), nil)
		require.NoError(t, c.Record(ctx, "p1", Verdict{ComputedAt: now, Active: true, Authoritative: true}))
		assert.True(t, c.Has(ctx, "p1", now))
	})

	t.Run("cached verdict under days policy", func(t *testing.T) {
		c := NewCache(memory.New(), FallbackDays(7), nil)
		require.NoError(t, c.Record(ctx, "p1", Verdict{ComputedAt: now.Add(-3 * 24 * time.Hour), Active: true}))
		assert.True(t, c.Has(ctx, "p1", now))
		assert.False(t, c.Has(ctx, "p1", now.Add(5*24*time.Hour)))
	})

	t.Run("cached verdict with fallback off", func(t *testing.T) {
		c := NewCache(memory.New(), FallbackOff(), nil)
		require.NoError(t, c.Record(ctx, "p1", Verdict{ComputedAt: now, Active: true}))
		assert.False(t, c.Has(ctx, "p1", now))
	})
}

func TestCacheRecordIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	kv := &countingStore{Store: memory.New()}
	c := NewCache(kv, FallbackDays(7), nil)

	v := Verdict{ComputedAt: now, Active: true, Authoritative: true}
	require.NoError(t, c.Record(ctx, "p1", v))
	require.NoError(t, c.Record(ctx, "p1", v))

	assert.Equal(t, 1, kv.Sets(), "identical verdict must not be persisted twice")
	assert.True(t, c.Has(ctx, "p1", now))
}

func TestCacheSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	kv := memory.New()

	c1 := NewCache(kv, FallbackDays(7), nil)
	require.NoError(t, c1.Record(ctx, "p1", Verdict{ComputedAt: now, Active: true, Authoritative: true}))

	// A new cache over the same durable store simulates a restart: the
	// verdict is still there but no longer authoritative.
	c2 := NewCache(kv, FallbackDays(7), nil)
	assert.True(t, c2.Has(ctx, "p1", now))
	assert.False(t, c2.Has(ctx, "p1", now.Add(8*24*time.Hour)))

	c3 := NewCache(kv, FallbackOff(), nil)
	assert.False(t, c3.Has(ctx, "p1", now), "restart with fallback off must not entitle")
}

func TestCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	require.NoError(t, kv.Set(ctx, StorageKey("p1"), []byte("{not json")))

	c := NewCache(kv, FallbackDays(7), nil)
	assert.False(t, c.Has(ctx, "p1", time.Now()))

	// The corrupt entry is discarded, not left to fail again.
	_, err := kv.Get(ctx, StorageKey("p1"))
	assert.ErrorIs(t, err, keyvalue.ErrNotFound)
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	kv := memory.New()
	c := NewCache(kv, FallbackDays(7), nil)

	require.NoError(t, c.Record(ctx, "p1", Verdict{ComputedAt: now, Active: true, Authoritative: true}))
	require.True(t, c.Has(ctx, "p1", now))

	require.NoError(t, c.Clear(ctx, "p1"))
	assert.False(t, c.Has(ctx, "p1", now))
	_, err := kv.Get(ctx, StorageKey("p1"))
	assert.ErrorIs(t, err, keyvalue.ErrNotFound)
}

func TestCacheLastSync(t *testing.T) {
	ctx := context.Background()
	c := NewCache(memory.New(), FallbackOff(), nil)

	_, ok := c.LastSync(ctx)
	assert.False(t, ok)

	mark := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	require.NoError(t, c.SetLastSync(ctx, mark))
	got, ok := c.LastSync(ctx)
	require.True(t, ok)
	assert.True(t, got.Equal(mark))
}

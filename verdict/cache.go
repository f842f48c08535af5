package verdict

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"purchasekit/keyvalue"
)

const (
	storagePrefix = "purchasekit.verdict."
	lastSyncKey   = "purchasekit.lastsync"
)

// StorageKey returns the durable-store key holding the verdict for a
// product. Exposed for diagnostic tooling.
func StorageKey(productID string) string {
	return storagePrefix + productID
}

// Decode parses a persisted verdict payload.
func Decode(data []byte) (Verdict, error) {
	var v Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

// Cache is the exclusive owner of persisted verdicts. It keeps an in-memory
// mirror, reads through to the durable store the first time a product is
// queried in a session, and evaluates entitlement under the fallback
// policy.
type Cache struct {
	kv     keyvalue.Store
	policy FallbackPolicy
	log    *zap.Logger

	mu     sync.Mutex
	mem    map[string]Verdict
	absent map[string]bool
}

// NewCache creates a cache over the given durable store.
func NewCache(kv keyvalue.Store, policy FallbackPolicy, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		kv:     kv,
		policy: policy,
		log:    log,
		mem:    make(map[string]Verdict),
		absent: make(map[string]bool),
	}
}

// Record persists a verdict for the product and updates in-memory state.
// Recording an identical verdict is an observable no-op.
func (c *Cache) Record(ctx context.Context, productID string, v Verdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.mem[productID]; ok && cur.Equal(v) {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, StorageKey(productID), data); err != nil {
		// Keep the session consistent even when persistence is down; the
		// verdict just won't survive a restart.
		c.log.Warn("verdict not persisted",
			zap.String("product", productID), zap.Error(err))
	}
	c.mem[productID] = v
	delete(c.absent, productID)
	return nil
}

// Has reports whether the product is currently entitled:
// no verdict → false; revoked → false; authoritative → true; otherwise the
// fallback policy decides.
func (c *Cache) Has(ctx context.Context, productID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lookup(ctx, productID)
	if !ok {
		return false
	}
	if !v.Active {
		return false
	}
	if v.Authoritative {
		return true
	}
	return c.policy.allows(v, now)
}

// lookup returns the in-memory verdict, reading through to durable storage
// on first miss. Corrupt entries are discarded and treated as never
// verified.
func (c *Cache) lookup(ctx context.Context, productID string) (Verdict, bool) {
	if v, ok := c.mem[productID]; ok {
		return v, true
	}
	if c.absent[productID] {
		return Verdict{}, false
	}
	data, err := c.kv.Get(ctx, StorageKey(productID))
	if errors.Is(err, keyvalue.ErrNotFound) {
		c.absent[productID] = true
		return Verdict{}, false
	}
	if err != nil {
		// Transient storage failure: miss without memoizing, so a later
		// query retries the read.
		c.log.Warn("verdict read failed",
			zap.String("product", productID), zap.Error(err))
		return Verdict{}, false
	}
	v, err := Decode(data)
	if err != nil {
		c.log.Warn("discarding corrupt verdict",
			zap.String("product", productID), zap.Error(err))
		_ = c.kv.Delete(ctx, StorageKey(productID))
		c.absent[productID] = true
		return Verdict{}, false
	}
	v.Authoritative = false
	c.mem[productID] = v
	return v, true
}

// Clear removes the product's verdict from memory and durable storage.
// Entitlement reads "not entitled" until the next reconciliation records a
// fresh verdict.
func (c *Cache) Clear(ctx context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.mem, productID)
	c.absent[productID] = true
	return c.kv.Delete(ctx, StorageKey(productID))
}

// SetLastSync persists the time of the last successful full
// reconciliation.
func (c *Cache) SetLastSync(ctx context.Context, t time.Time) error {
	data, err := t.UTC().MarshalText()
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, lastSyncKey, data)
}

// LastSync reports when the last successful full reconciliation finished.
func (c *Cache) LastSync(ctx context.Context) (time.Time, bool) {
	data, err := c.kv.Get(ctx, lastSyncKey)
	if err != nil {
		return time.Time{}, false
	}
	var t time.Time
	if err := t.UnmarshalText(data); err != nil {
		c.log.Warn("discarding corrupt last-sync marker", zap.Error(err))
		_ = c.kv.Delete(ctx, lastSyncKey)
		return time.Time{}, false
	}
	return t, true
}

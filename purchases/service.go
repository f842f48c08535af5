// Package purchases is the public facade over the product catalog, the
// entitlement cache, the reconciliation engine and the status notifier.
//
// A Service is application-owned with an explicit lifecycle: New wires the
// collaborators, Start begins live transaction consumption, Stop cancels it
// cleanly. There is no process-wide singleton.
package purchases

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"purchasekit/catalog"
	"purchasekit/internal/pkg/reconcile"
	"purchasekit/keyvalue"
	"purchasekit/keyvalue/memory"
	"purchasekit/notify"
	"purchasekit/store"
	"purchasekit/verdict"
)

// Config wires the external collaborators into a Service.
type Config struct {
	// Client talks to the store/payment service. Required.
	Client store.Client
	// VerifyKey validates record signatures (ES256). Required.
	VerifyKey *ecdsa.PublicKey
	// KV is the durable store for verdicts. Defaults to an in-memory store,
	// which does not survive restarts.
	KV keyvalue.Store
	// Fallback governs cached answers while the store is unreachable.
	// The zero value disables fallback.
	Fallback verdict.FallbackPolicy
	// DefaultGroup names the group reported by Snapshot.Default.
	DefaultGroup string
	// ResyncInterval schedules periodic full reconciliation; 0 disables it.
	ResyncInterval time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Service exposes catalog initialization, product listing, purchase
// initiation, entitlement queries and reconciliation control.
type Service struct {
	log     *zap.Logger
	client  store.Client
	catalog *catalog.Loader
	cache   *verdict.Cache
	hub     *notify.Hub
	engine  *reconcile.Engine

	// mu is the single writer over verdict application and group
	// recomputation. Reads of immutable snapshots bypass it.
	mu sync.Mutex
}

// New validates the config and wires a Service. Call Start to begin live
// stream consumption.
func New(cfg Config) (*Service, error) {
	if cfg.Client == nil {
		return nil, errors.New("purchases: store client is required")
	}
	if cfg.VerifyKey == nil {
		return nil, errors.New("purchases: verification key is required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	kv := cfg.KV
	if kv == nil {
		kv = memory.New()
	}

	s := &Service{
		log:     log,
		client:  cfg.Client,
		catalog: catalog.NewLoader(cfg.Client, log),
		cache:   verdict.NewCache(kv, cfg.Fallback, log),
		hub:     notify.NewHub(cfg.DefaultGroup),
	}
	s.engine = reconcile.New(cfg.Client, store.NewGate(cfg.VerifyKey), s, cfg.ResyncInterval, log)
	return s, nil
}

// Start begins consuming the store's live transaction stream. The consumer
// runs until Stop or ctx cancellation.
func (s *Service) Start(ctx context.Context) error {
	return s.engine.Start(ctx)
}

// Stop cancels the background consumers and waits for them to drain.
func (s *Service) Stop() {
	s.engine.Stop()
}

// InitializeCatalog loads the catalog definition and resolves product
// metadata. It runs at most once per Service; concurrent callers share the
// in-flight load.
func (s *Service) InitializeCatalog(ctx context.Context, src catalog.Source) error {
	return s.catalog.Initialize(ctx, src)
}

// ListProducts returns the group's products, unresolved first by ID, then
// resolved by ascending price. Products flagged as hidden are excluded when
// displayOnly is set. Missing metadata is re-resolved best-effort first; a
// transient store failure degrades to the current catalog rather than an
// error.
func (s *Service) ListProducts(ctx context.Context, group string, displayOnly bool) ([]catalog.Product, error) {
	if err := s.catalog.Reload(ctx); err != nil {
		s.log.Debug("catalog reload deferred", zap.Error(err))
	}
	return s.catalog.Products(group, displayOnly)
}

// Groups lists all catalog group names in definition order.
func (s *Service) Groups() []string {
	return s.catalog.Groups()
}

// Purchase runs the store's payment flow for the product. The product must
// have resolved metadata. A completed purchase flows through the same
// verify → record → notify pipeline as live updates; cancellation or a
// pending state yields a no-transaction result without error.
func (s *Service) Purchase(ctx context.Context, productID string) (store.PurchaseResult, error) {
	p, ok := s.catalog.Product(productID)
	if !ok || !p.Resolved() {
		return store.PurchaseResult{}, fmt.Errorf("%w: %s", ErrProductNotLoaded, productID)
	}

	res, err := s.client.Purchase(ctx, productID)
	if err != nil {
		return store.PurchaseResult{}, err
	}
	if res.Outcome == store.PurchaseCompleted && res.Record != nil {
		s.engine.HandleRecord(ctx, *res.Record)
	}
	return res, nil
}

// IsGroupEntitled reports whether any product in the group is entitled. It
// never fails: with the store unreachable it answers from cached verdicts
// under the fallback policy, and an unavailable catalog reads as not
// entitled.
func (s *Service) IsGroupEntitled(ctx context.Context, group string) bool {
	products, err := s.catalog.Products(group, false)
	if err != nil {
		return false
	}
	now := time.Now()
	for _, p := range products {
		if s.cache.Has(ctx, p.ID, now) {
			return true
		}
	}
	return false
}

// Resync replays the store's full entitlement set and refreshes every
// referenced verdict. Concurrent calls collapse into one pass whose outcome
// all callers observe. Also serves as the restore-purchases entry point.
func (s *Service) Resync(ctx context.Context) error {
	return s.engine.Resync(ctx)
}

// ClearCache removes every persisted verdict (diagnostic reset). Until the
// next reconciliation, entitlement queries answer "not entitled".
func (s *Service) ClearCache(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, id := range s.catalog.IDs() {
		if err := s.cache.Clear(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LastResync reports when the last successful full reconciliation finished.
func (s *Service) LastResync(ctx context.Context) (time.Time, bool) {
	return s.cache.LastSync(ctx)
}

// Subscribe registers an observer for group status snapshots. The latest
// snapshot, if any, is replayed on join.
func (s *Service) Subscribe() (uuid.UUID, <-chan notify.Snapshot) {
	return s.hub.Subscribe()
}

// Unsubscribe removes an observer and closes its channel.
func (s *Service) Unsubscribe(id uuid.UUID) {
	s.hub.Unsubscribe(id)
}

// Snapshot returns the latest published group status snapshot.
func (s *Service) Snapshot() (notify.Snapshot, bool) {
	return s.hub.Latest()
}

// ApplyTransaction implements reconcile.Sink. Every verdict write funnels
// through here under the service mutex, preserving verification order.
func (s *Service) ApplyTransaction(ctx context.Context, tx *store.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := verdict.FromTransaction(tx, time.Now())
	if err := s.cache.Record(ctx, tx.ProductID, v); err != nil {
		s.log.Warn("verdict not recorded",
			zap.String("product", tx.ProductID), zap.Error(err))
	}
}

// Flush implements reconcile.Sink: recompute every group's status and
// publish a snapshot if anything changed.
func (s *Service) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := s.groupStatus(ctx)
	if snap, changed := s.hub.PublishIfChanged(groups); changed {
		s.log.Info("group status changed", zap.Uint64("version", snap.Version))
	}
}

// MarkSynced implements reconcile.Sink.
func (s *Service) MarkSynced(ctx context.Context, t time.Time) {
	if err := s.cache.SetLastSync(ctx, t); err != nil {
		s.log.Warn("last-sync marker not persisted", zap.Error(err))
	}
}

func (s *Service) groupStatus(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	now := time.Now()
	for _, g := range s.catalog.Groups() {
		products, err := s.catalog.Products(g, false)
		if err != nil {
			continue
		}
		entitled := false
		for _, p := range products {
			if s.cache.Has(ctx, p.ID, now) {
				entitled = true
				break
			}
		}
		out[g] = entitled
	}
	return out
}

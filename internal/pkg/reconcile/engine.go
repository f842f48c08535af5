// Package reconcile runs the consumers that keep the entitlement cache in
// step with the store service's transaction ledger: a live-update stream
// consumer and an on-demand full reconciliation pass.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"purchasekit/store"
)

// Sink receives verified transactions. The implementation routes every
// write through a single writer, so verdicts land in the order their
// records were verified.
type Sink interface {
	// ApplyTransaction records a verdict for one verified transaction.
	ApplyTransaction(ctx context.Context, tx *store.Transaction)
	// Flush recomputes group status and notifies observers if it changed.
	Flush(ctx context.Context)
	// MarkSynced records the completion time of a full reconciliation.
	MarkSynced(ctx context.Context, t time.Time)
}

// Engine owns the long-running reconciliation consumers.
type Engine struct {
	client   store.Client
	gate     *store.Gate
	sink     Sink
	interval time.Duration
	log      *zap.Logger

	sf      singleflight.Group
	mu      sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running bool
}

// New creates an engine. interval > 0 additionally schedules periodic full
// reconciliation.
func New(client store.Client, gate *store.Gate, sink Sink, interval time.Duration, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		client:   client,
		gate:     gate,
		sink:     sink,
		interval: interval,
		log:      log,
	}
}

// Start begins consuming the live update stream. The consumer runs until
// Stop is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	updates, err := e.client.Updates(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", store.ErrUnreachable, err)
	}

	e.cancel = cancel
	e.running = true
	e.log.Info("reconciliation engine started",
		zap.Duration("resync_interval", e.interval))

	e.wg.Add(1)
	go e.consume(runCtx, updates)

	if e.interval > 0 {
		e.wg.Add(1)
		go e.scheduler(runCtx)
	}
	return nil
}

// Stop cancels the consumers and waits for them to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	e.log.Info("reconciliation engine stopped")
}

func (e *Engine) consume(ctx context.Context, updates <-chan store.SignedRecord) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-updates:
			if !ok {
				e.log.Warn("live update stream closed")
				return
			}
			e.HandleRecord(ctx, rec)
		}
	}
}

func (e *Engine) scheduler(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Resync(ctx); err != nil {
				e.log.Warn("scheduled reconciliation failed", zap.Error(err))
			}
		}
	}
}

// HandleRecord runs one record through verify → apply → notify, then
// finalizes it with the store service exactly once. An unverifiable record
// is logged and skipped, but still finalized so the store does not redeliver
// it forever.
func (e *Engine) HandleRecord(ctx context.Context, rec store.SignedRecord) {
	tx, err := e.gate.Verify(rec)
	if err != nil {
		e.log.Warn("skipping unverifiable transaction record",
			zap.String("transaction", rec.TransactionID), zap.Error(err))
	} else {
		e.sink.ApplyTransaction(ctx, tx)
		e.sink.Flush(ctx)
	}
	if err := e.client.Finish(ctx, rec.TransactionID); err != nil {
		e.log.Warn("transaction finalization failed",
			zap.String("transaction", rec.TransactionID), zap.Error(err))
	}
}

// Resync replays the store's full entitlement set into the cache.
// Concurrent calls collapse into a single pass whose outcome every caller
// observes. A failure to enumerate leaves existing verdicts untouched.
// Products absent from the enumeration are not treated as revoked; only
// explicit revocation records clear entitlement, which protects against
// partial responses from the store.
func (e *Engine) Resync(ctx context.Context) error {
	_, err, _ := e.sf.Do("resync", func() (any, error) {
		return nil, e.resync(ctx)
	})
	return err
}

func (e *Engine) resync(ctx context.Context) error {
	recs, err := e.client.CurrentEntitlements(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnreachable, err)
	}

	applied := 0
	for _, rec := range recs {
		tx, err := e.gate.Verify(rec)
		if err != nil {
			e.log.Warn("skipping unverifiable entitlement record",
				zap.String("transaction", rec.TransactionID), zap.Error(err))
			continue
		}
		e.sink.ApplyTransaction(ctx, tx)
		applied++
	}
	// One notification pass for the whole batch, not one per record.
	e.sink.Flush(ctx)
	e.sink.MarkSynced(ctx, time.Now())

	e.log.Info("full reconciliation complete",
		zap.Int("records", len(recs)), zap.Int("applied", applied))
	return nil
}

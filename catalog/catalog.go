// Package catalog loads the grouped product catalog and resolves it against
// the store service.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"purchasekit/store"
)

// ErrUnavailable means catalog initialization never completed or failed.
// Distinct from an initialized catalog that happens to be empty.
var ErrUnavailable = errors.New("catalog: unavailable")

// Product is one purchasable item. Identity and equality are keyed solely
// on the product ID.
type Product struct {
	ID      string
	Group   string
	Display bool
	// Info is nil until the product has been resolved against the store
	// service. Treat it as read-only.
	Info *store.ProductInfo
}

// Resolved reports whether store metadata has been attached.
func (p Product) Resolved() bool {
	return p.Info != nil
}

// Loader owns the catalog: it parses the definition once, resolves product
// metadata, and serves read-mostly product listings.
type Loader struct {
	client store.Client
	log    *zap.Logger
	sf     singleflight.Group

	mu      sync.Mutex
	def     Definition
	items   map[string]*Product
	ready   bool
	started bool
	done    chan struct{}
	initErr error
}

// NewLoader creates an empty, uninitialized catalog loader.
func NewLoader(client store.Client, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		client: client,
		log:    log,
		items:  make(map[string]*Product),
	}
}

// Initialize loads the definition and resolves product metadata. It runs at
// most once per loader: concurrent callers await the in-flight load, later
// callers observe its outcome. Metadata resolution failures are tolerated
// (Reload picks the products up later); only a failed definition load marks
// the catalog unavailable.
func (l *Loader) Initialize(ctx context.Context, src Source) error {
	l.mu.Lock()
	if l.started {
		done := l.done
		l.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		l.mu.Lock()
		err := l.initErr
		l.mu.Unlock()
		return err
	}
	l.started = true
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	err := l.initialize(ctx, src)
	l.mu.Lock()
	l.initErr = err
	l.mu.Unlock()
	close(done)
	return err
}

func (l *Loader) initialize(ctx context.Context, src Source) error {
	def, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	l.mu.Lock()
	l.def = def
	l.items = make(map[string]*Product)
	for _, g := range def {
		for _, e := range g.Items {
			l.items[e.ProductID] = &Product{
				ID:      e.ProductID,
				Group:   g.Name,
				Display: e.Display,
			}
		}
	}
	l.ready = true
	l.mu.Unlock()

	if err := l.resolveMissing(ctx); err != nil {
		l.log.Warn("catalog resolution incomplete", zap.Error(err))
	}
	return nil
}

// NeedsReload reports whether the catalog is empty or any product still
// lacks resolved metadata.
func (l *Loader) NeedsReload() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return true
	}
	for _, p := range l.items {
		if p.Info == nil {
			return true
		}
	}
	return false
}

// Reload re-resolves products that are still missing metadata, a no-op when
// nothing is missing. Concurrent reloads collapse into one resolution pass.
func (l *Loader) Reload(ctx context.Context) error {
	if !l.Ready() || !l.NeedsReload() {
		return nil
	}
	_, err, _ := l.sf.Do("reload", func() (any, error) {
		return nil, l.resolveMissing(ctx)
	})
	return err
}

func (l *Loader) resolveMissing(ctx context.Context) error {
	l.mu.Lock()
	var missing []string
	for id, p := range l.items {
		if p.Info == nil {
			missing = append(missing, id)
		}
	}
	l.mu.Unlock()
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)

	infos, err := l.client.Products(ctx, missing)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnreachable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range infos {
		info := infos[i]
		if p, ok := l.items[info.ID]; ok {
			p.Info = &info
			l.log.Debug("product resolved",
				zap.String("product", info.ID), zap.String("group", p.Group))
		}
	}
	return nil
}

// Ready reports whether a definition has been loaded.
func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// Products returns the group's products: unresolved first ordered by ID,
// then resolved ordered by ascending price (ties broken by ID). With
// displayOnly set, products flagged as hidden are excluded.
func (l *Loader) Products(group string, displayOnly bool) ([]Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return nil, ErrUnavailable
	}

	var out []Product
	for _, g := range l.def {
		if g.Name != group {
			continue
		}
		for _, e := range g.Items {
			p, ok := l.items[e.ProductID]
			if !ok || (displayOnly && !p.Display) {
				continue
			}
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Resolved(), out[j].Resolved()
		if ri != rj {
			return !ri
		}
		if !ri {
			return out[i].ID < out[j].ID
		}
		if out[i].Info.PriceCents != out[j].Info.PriceCents {
			return out[i].Info.PriceCents < out[j].Info.PriceCents
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Product returns a snapshot of one product.
func (l *Loader) Product(id string) (Product, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.items[id]
	if !ok {
		return Product{}, false
	}
	return *p, true
}

// Groups returns all group names in definition order.
func (l *Loader) Groups() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.def))
	for _, g := range l.def {
		out = append(out, g.Name)
	}
	return out
}

// IDs returns every known product ID.
func (l *Loader) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.items))
	for id := range l.items {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset discards all catalog state so Initialize may run again. Intended
// for full catalog reloads, not routine operation.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.def = nil
	l.items = make(map[string]*Product)
	l.ready = false
	l.started = false
	l.done = nil
	l.initErr = nil
}

package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultWarmLoads       = 4
	defaultReloadPerMinute = 6
)

// RegistryStore extends the manager's persistence surface with shop
// discovery.
type RegistryStore interface {
	ScheduleStore
	ListShops(ctx context.Context) ([]string, error)
}

// Registry hands out one Manager per shop, loading lazily on first
// request. Concurrent first-time loads are bounded by a weighted
// semaphore so a burst of cold shops cannot saturate the store, and
// per-shop reloads are rate limited.
type Registry struct {
	store           RegistryStore
	managerOpts     []Option
	loadSem         *semaphore.Weighted
	reloadPerMinute int

	mu       sync.RWMutex
	managers map[string]*Manager
	limiters map[string]*rate.Limiter
}

// NewRegistry builds a registry. warmLoads bounds concurrent cold
// loads, reloadPerMinute caps externally triggered reloads per shop;
// both fall back to defaults when not positive. The manager options
// apply to every manager the registry creates.
func NewRegistry(st RegistryStore, warmLoads int64, reloadPerMinute int, managerOpts ...Option) *Registry {
	if warmLoads <= 0 {
		warmLoads = defaultWarmLoads
	}
	if reloadPerMinute <= 0 {
		reloadPerMinute = defaultReloadPerMinute
	}
	return &Registry{
		store:           st,
		managerOpts:     managerOpts,
		loadSem:         semaphore.NewWeighted(warmLoads),
		reloadPerMinute: reloadPerMinute,
		managers:        make(map[string]*Manager),
		limiters:        make(map[string]*rate.Limiter),
	}
}

// Get returns the manager for a shop, loading it from the store on
// first use. Two concurrent first requests for the same shop may both
// load; the first to finish wins and the other result is discarded.
func (r *Registry) Get(ctx context.Context, shopID string) (*Manager, error) {
	r.mu.RLock()
	mgr := r.managers[shopID]
	r.mu.RUnlock()
	if mgr != nil {
		return mgr, nil
	}

	if err := r.loadSem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrapf(err, "acquire load slot for shop %s", shopID)
	}
	defer r.loadSem.Release(1)

	r.mu.RLock()
	mgr = r.managers[shopID]
	r.mu.RUnlock()
	if mgr != nil {
		return mgr, nil
	}

	mgr, err := NewManager(shopID, r.store, r.managerOpts...)
	if err != nil {
		return nil, err
	}
	if err := mgr.Load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.managers[shopID]; existing != nil {
		return existing, nil
	}
	r.managers[shopID] = mgr
	return mgr, nil
}

// Peek returns the manager if the shop is already loaded, nil
// otherwise. It never touches the store.
func (r *Registry) Peek(shopID string) *Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.managers[shopID]
}

// Reload refreshes one shop from the store. Calls beyond the per-shop
// rate are dropped silently; the periodic sweep resyncs everything
// anyway.
func (r *Registry) Reload(ctx context.Context, shopID string) error {
	mgr, err := r.Get(ctx, shopID)
	if err != nil {
		return err
	}
	if !r.limiter(shopID).Allow() {
		slog.Debug("reload throttled", "shop", shopID)
		return nil
	}
	return mgr.Load(ctx)
}

func (r *Registry) limiter(shopID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim := r.limiters[shopID]
	if lim == nil {
		// Tokens refill evenly across the minute; one reload can run
		// at a time.
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.reloadPerMinute)), 1)
		r.limiters[shopID] = lim
	}
	return lim
}

// ReloadAll refreshes every shop the store knows about, loading
// managers for shops seen for the first time. Per-shop failures are
// logged and counted but do not stop the pass. The returned count is
// the number of shops refreshed successfully.
func (r *Registry) ReloadAll(ctx context.Context) (int, error) {
	shops, err := r.store.ListShops(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list shops")
	}

	reloaded := 0
	for _, shop := range shops {
		mgr := r.Peek(shop)
		if mgr == nil {
			if _, err := r.Get(ctx, shop); err != nil {
				slog.Error("failed to load shop", "shop", shop, "error", err)
				continue
			}
			reloaded++
			continue
		}
		if err := mgr.Load(ctx); err != nil {
			slog.Error("failed to reload shop", "shop", shop, "error", err)
			continue
		}
		reloaded++
	}
	return reloaded, nil
}

// Remove drops a shop's manager and limiter, typically after the shop
// uninstalls. The next Get loads fresh.
func (r *Registry) Remove(shopID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, shopID)
	delete(r.limiters, shopID)
}

// Shops lists the currently loaded shops in sorted order.
func (r *Registry) Shops() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	shops := make([]string, 0, len(r.managers))
	for shop := range r.managers {
		shops = append(shops, shop)
	}
	sort.Strings(shops)
	return shops
}

// Size returns the number of loaded managers.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.managers)
}

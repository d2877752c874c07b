package store

import (
	"context"
	"time"

	"github.com/popupkit/popupkit/internal/cache"
	"github.com/popupkit/popupkit/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// shopListCache caches full per-shop schedule lists, the read the
	// engine performs on every index (re)load. Any write to a shop
	// invalidates its entry.
	shopListCache *cache.LRU[string, []*Schedule]
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	ttl := profile.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Store{
		driver:        driver,
		profile:       profile,
		shopListCache: cache.NewLRU[string, []*Schedule](512, ttl),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate brings the schema up to date. Called once at startup.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// LoadShopSchedules returns every schedule of a shop, served from the
// read cache when fresh.
func (s *Store) LoadShopSchedules(ctx context.Context, shopID string) ([]*Schedule, error) {
	if cached, ok := s.shopListCache.Get(shopID); ok {
		return cached, nil
	}

	schedules, err := s.driver.ListSchedules(ctx, &FindSchedule{ShopID: &shopID})
	if err != nil {
		return nil, err
	}
	s.shopListCache.SetWithDefaultTTL(shopID, schedules)
	return schedules, nil
}

func (s *Store) CreateSchedule(ctx context.Context, create *Schedule) (*Schedule, error) {
	created, err := s.driver.CreateSchedule(ctx, create)
	if err != nil {
		return nil, err
	}
	s.shopListCache.Remove(created.ShopID)
	return created, nil
}

func (s *Store) ListSchedules(ctx context.Context, find *FindSchedule) ([]*Schedule, error) {
	return s.driver.ListSchedules(ctx, find)
}

func (s *Store) UpdateSchedule(ctx context.Context, update *Schedule) (*Schedule, error) {
	updated, err := s.driver.UpdateSchedule(ctx, update)
	if err != nil {
		return nil, err
	}
	s.shopListCache.Remove(updated.ShopID)
	return updated, nil
}

func (s *Store) DeleteSchedule(ctx context.Context, delete *DeleteSchedule) error {
	if err := s.driver.DeleteSchedule(ctx, delete); err != nil {
		return err
	}
	s.shopListCache.Remove(delete.ShopID)
	return nil
}

func (s *Store) ListShops(ctx context.Context) ([]string, error) {
	return s.driver.ListShops(ctx)
}

func (s *Store) CreateCustomHoliday(ctx context.Context, create *CustomHoliday) (*CustomHoliday, error) {
	return s.driver.CreateCustomHoliday(ctx, create)
}

func (s *Store) ListCustomHolidays(ctx context.Context, find *FindCustomHoliday) ([]*CustomHoliday, error) {
	return s.driver.ListCustomHolidays(ctx, find)
}

func (s *Store) DeleteCustomHoliday(ctx context.Context, delete *DeleteCustomHoliday) error {
	return s.driver.DeleteCustomHoliday(ctx, delete)
}

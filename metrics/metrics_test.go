package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/popupkit/popupkit/scheduler"
	"github.com/popupkit/popupkit/store"
)

func TestExporter(t *testing.T) {
	e := New(DefaultConfig())

	e.RecordEvaluation("shop-1", true)
	e.RecordEvaluation("shop-1", true)
	e.RecordEvaluation("shop-1", false)
	e.RecordWrite("shop-1", "create")
	e.RecordPreview("shop-1", 12)
	e.RecordConflictScan("shop-1", 3)

	t.Run("serves metrics endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		body := w.Body.String()

		expected := []string{
			"popupkit_scheduler_evaluations_total",
			"popupkit_scheduler_writes_total",
			"popupkit_scheduler_preview_iterations",
			"popupkit_scheduler_conflict_scans_total",
			"popupkit_scheduler_conflicts_found_total",
			"popupkit_timezone_cache_hits_total",
			"popupkit_timezone_cache_misses_total",
			"popupkit_holiday_lookups_total",
			"popupkit_holiday_matches_total",
		}
		for _, name := range expected {
			if !strings.Contains(body, name) {
				t.Errorf("expected metric %s in output", name)
			}
		}
	})

	t.Run("splits evaluations by result", func(t *testing.T) {
		body := scrape(t, e)
		if !strings.Contains(body, `popupkit_scheduler_evaluations_total{result="active",shop="shop-1"} 2`) {
			t.Errorf("expected 2 active evaluations, got:\n%s", body)
		}
		if !strings.Contains(body, `popupkit_scheduler_evaluations_total{result="inactive",shop="shop-1"} 1`) {
			t.Errorf("expected 1 inactive evaluation, got:\n%s", body)
		}
	})

	t.Run("labels writes by operation", func(t *testing.T) {
		body := scrape(t, e)
		if !strings.Contains(body, `popupkit_scheduler_writes_total{op="create",shop="shop-1"} 1`) {
			t.Errorf("expected create write counter, got:\n%s", body)
		}
	})

	t.Run("accumulates found conflicts", func(t *testing.T) {
		body := scrape(t, e)
		if !strings.Contains(body, `popupkit_scheduler_conflicts_found_total{shop="shop-1"} 3`) {
			t.Errorf("expected 3 conflicts found, got:\n%s", body)
		}
	})

	t.Run("observes preview iterations", func(t *testing.T) {
		body := scrape(t, e)
		if !strings.Contains(body, `popupkit_scheduler_preview_iterations_count{shop="shop-1"} 1`) {
			t.Errorf("expected one preview observation, got:\n%s", body)
		}
		if !strings.Contains(body, `popupkit_scheduler_preview_iterations_sum{shop="shop-1"} 12`) {
			t.Errorf("expected iteration sum 12, got:\n%s", body)
		}
	})
}

func TestExporterDefaultBuckets(t *testing.T) {
	e := New(Config{})
	e.RecordPreview("shop-1", 700)

	body := scrape(t, e)
	if !strings.Contains(body, `le="1000"`) {
		t.Errorf("expected default bucket boundary at the scan cap, got:\n%s", body)
	}
}

func TestTrackRegistry(t *testing.T) {
	st := &noopStore{}
	reg := scheduler.NewRegistry(st, 2, 6)
	if _, err := reg.Get(context.Background(), "shop-1"); err != nil {
		t.Fatalf("load shop: %v", err)
	}

	e := New(DefaultConfig())
	e.TrackRegistry(reg)

	body := scrape(t, e)
	if !strings.Contains(body, "popupkit_scheduler_loaded_shops 1") {
		t.Errorf("expected loaded shop gauge at 1, got:\n%s", body)
	}
}

func TestRecorderContract(t *testing.T) {
	var _ scheduler.MetricsRecorder = New(DefaultConfig())
}

func scrape(t *testing.T, e *Exporter) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w.Body.String()
}

// noopStore is the smallest store surface a registry needs.
type noopStore struct{}

func (s *noopStore) LoadShopSchedules(ctx context.Context, shopID string) ([]*store.Schedule, error) {
	return nil, nil
}

func (s *noopStore) CreateSchedule(ctx context.Context, create *store.Schedule) (*store.Schedule, error) {
	return create, nil
}

func (s *noopStore) UpdateSchedule(ctx context.Context, update *store.Schedule) (*store.Schedule, error) {
	return update, nil
}

func (s *noopStore) DeleteSchedule(ctx context.Context, del *store.DeleteSchedule) error {
	return nil
}

func (s *noopStore) CreateCustomHoliday(ctx context.Context, create *store.CustomHoliday) (*store.CustomHoliday, error) {
	return create, nil
}

func (s *noopStore) ListCustomHolidays(ctx context.Context, find *store.FindCustomHoliday) ([]*store.CustomHoliday, error) {
	return nil, nil
}

func (s *noopStore) DeleteCustomHoliday(ctx context.Context, del *store.DeleteCustomHoliday) error {
	return nil
}

func (s *noopStore) ListShops(ctx context.Context) ([]string, error) {
	return []string{"shop-1"}, nil
}

func BenchmarkRecordEvaluation(b *testing.B) {
	e := New(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.RecordEvaluation("shop-1", i%2 == 0)
	}
}

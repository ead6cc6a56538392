package recurrence

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mechasense/mechasense/internal/cache"
	"github.com/mechasense/mechasense/internal/domain"
	"github.com/mechasense/mechasense/internal/repository"
)

func TestRecurrenceService(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "recurrence-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	lruCache := cache.NewLRUCache(100)
	defer lruCache.Close()

	svc := NewService(repo, lruCache)

	ctx := context.Background()
	tenantID := "tenant-001"

	saveAlerts := func(t *testing.T, motorID string, n int, at time.Time) {
		t.Helper()
		for i := 0; i < n; i++ {
			a := &domain.Alert{
				ID:        fmt.Sprintf("%s-alert-%d-%d", motorID, at.Unix(), i),
				MotorID:   motorID,
				Parameter: domain.ParamBearingTemp,
				Value:     80,
				Severity:  domain.SeverityWarning,
				Message:   "Bearing Temperature approaching safe limit: 80 °C",
				Timestamp: at,
			}
			if err := repo.SaveAlert(ctx, tenantID, a); err != nil {
				t.Fatalf("failed to save alert: %v", err)
			}
		}
	}

	t.Run("NoAlerts", func(t *testing.T) {
		count, err := svc.GetAlertCount(ctx, tenantID, "motor-001", 3600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 {
			t.Errorf("expected count 0, got %d", count)
		}
	})

	t.Run("WithinWindow", func(t *testing.T) {
		svc.Invalidate(ctx, tenantID, "motor-001", 3600)

		saveAlerts(t, "motor-001", 4, time.Now().UTC().Add(-10*time.Minute))
		saveAlerts(t, "motor-001", 3, time.Now().UTC().Add(-2*time.Hour))

		count, err := svc.GetAlertCount(ctx, tenantID, "motor-001", 3600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 4 {
			t.Errorf("expected 4 alerts in the last hour, got %d", count)
		}

		count, err = svc.GetAlertCount(ctx, tenantID, "motor-001", 3*3600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 7 {
			t.Errorf("expected 7 alerts in three hours, got %d", count)
		}
	})

	t.Run("MemoisedUntilInvalidated", func(t *testing.T) {
		saveAlerts(t, "motor-001", 1, time.Now().UTC())

		count, _ := svc.GetAlertCount(ctx, tenantID, "motor-001", 3600)
		if count != 4 {
			t.Errorf("expected memoised count 4, got %d", count)
		}

		svc.Invalidate(ctx, tenantID, "motor-001", 3600)
		count, _ = svc.GetAlertCount(ctx, tenantID, "motor-001", 3600)
		if count != 5 {
			t.Errorf("expected fresh count 5, got %d", count)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		count, err := svc.GetAlertCount(ctx, "other-tenant", "motor-001", 3600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 {
			t.Errorf("expected count 0 for different tenant, got %d", count)
		}
	})

	t.Run("RequiresIDs", func(t *testing.T) {
		if _, err := svc.GetAlertCount(ctx, "", "motor-001", 3600); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := svc.GetAlertCount(ctx, tenantID, "", 3600); err == nil {
			t.Error("expected error for empty motorID")
		}
	})

	t.Run("RecurrenceGetter", func(t *testing.T) {
		getter := svc.GetRecurrenceGetter()
		if getter == nil {
			t.Fatal("GetRecurrenceGetter returned nil")
		}
		count, err := getter(ctx, tenantID, "motor-001", 3600)
		if err != nil {
			t.Fatalf("RecurrenceGetter failed: %v", err)
		}
		if count != 5 {
			t.Errorf("expected count 5, got %d", count)
		}
	})
}

func TestWithoutCache(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "recurrence-nocache.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	svc := NewService(repo, nil)
	if _, err := svc.GetAlertCount(context.Background(), "tenant-001", "motor-001", 60); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	svc.Invalidate(context.Background(), "tenant-001", "motor-001", 60)
}

func TestNoDataSource(t *testing.T) {
	svc := &Service{now: time.Now}

	_, err := svc.GetAlertCount(context.Background(), "tenant", "motor", 3600)
	if err == nil {
		t.Error("expected error with no data source")
	}
}

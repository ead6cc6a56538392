// Package recurrence counts how often a motor has raised alerts recently.
package recurrence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mechasense/mechasense/internal/domain"
)

// memoTTL bounds how stale a cached count may be.
const memoTTL = 5 * time.Second

// Service calculates alert recurrence for motors.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	now   func() time.Time
}

// NewService creates a new recurrence service. cache may be nil.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		now:   time.Now,
	}
}

// GetAlertCount returns the number of alerts a motor raised within the window.
// This is the RecurrenceGetter signature expected by the rule engine.
func (s *Service) GetAlertCount(ctx context.Context, tenantID, motorID string, windowSecs int) (int64, error) {
	if tenantID == "" || motorID == "" {
		return 0, fmt.Errorf("tenantID and motorID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	key := "recurrence:" + motorID + ":" + strconv.Itoa(windowSecs)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, tenantID, key); err == nil && raw != nil {
			if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
				return n, nil
			}
		}
	}

	since := s.now().UTC().Add(-time.Duration(windowSecs) * time.Second)
	count, err := s.repo.CountAlertsSince(ctx, tenantID, motorID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, tenantID, key, []byte(strconv.FormatInt(count, 10)), memoTTL)
	}
	return count, nil
}

// Invalidate drops the memoised counts of a motor for the given window.
// Called after new alerts are persisted so the next pass sees them.
func (s *Service) Invalidate(ctx context.Context, tenantID, motorID string, windowSecs int) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, tenantID, "recurrence:"+motorID+":"+strconv.Itoa(windowSecs))
}

// GetRecurrenceGetter returns a RecurrenceGetter function for the rule engine.
func (s *Service) GetRecurrenceGetter() func(ctx context.Context, tenantID, motorID string, windowSecs int) (int64, error) {
	return s.GetAlertCount
}

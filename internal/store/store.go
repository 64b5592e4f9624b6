// Package store is the persistence boundary: service definitions plus the
// append-only check_results history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"servicepulse/internal/models"
)

// ErrNotFound is returned when a service id does not exist.
var ErrNotFound = errors.New("service not found")

// Store is the repository contract consumed by the scheduler and handlers.
type Store interface {
	GetService(ctx context.Context, id uuid.UUID) (*models.Service, error)
	ListServices(ctx context.Context) ([]*models.Service, error)

	// ListDueServices returns active, non-paused services whose next due
	// time (last_check_at + interval, or immediately when never checked)
	// is at or before now.
	ListDueServices(ctx context.Context, now time.Time) ([]*models.Service, error)

	// SaveService upserts the full service row.
	SaveService(ctx context.Context, svc *models.Service) error

	// DeleteService removes the service; its check results cascade.
	DeleteService(ctx context.Context, id uuid.UUID) error

	AppendCheckResult(ctx context.Context, result *models.CheckResult) error
	ListCheckResults(ctx context.Context, serviceID uuid.UUID, limit int) ([]*models.CheckResult, error)
	CountCheckResults(ctx context.Context, serviceID uuid.UUID, since time.Time) (total, healthy int64, err error)

	// PruneCheckResults deletes results older than the cutoff and reports
	// how many rows went away.
	PruneCheckResults(ctx context.Context, olderThan time.Time) (int64, error)
}

// isDue applies the authoritative per-service due check. The SQL candidate
// query filters broadly; this decides.
func isDue(svc *models.Service, now time.Time) bool {
	if svc.LastCheckAt == nil {
		return true
	}
	return !now.Before(svc.LastCheckAt.Add(svc.Interval()))
}

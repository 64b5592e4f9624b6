// Package health owns the pure status-transition logic: given a check
// outcome it mutates a service's rolling state and produces the immutable
// result record, without touching the network or the database.
package health

import (
	"time"

	"github.com/google/uuid"

	"servicepulse/internal/checker"
	"servicepulse/internal/models"
)

// Failure thresholds: one unhealthy check degrades a service, three in a
// row mark it unhealthy.
const (
	degradedThreshold  = 1
	unhealthyThreshold = 3
)

// Transition describes what a single check outcome did to a service.
type Transition struct {
	Result        models.CheckResult
	OldStatus     models.ServiceStatus
	NewStatus     models.ServiceStatus
	StatusChanged bool
}

// Apply folds one check outcome into the service's cached state and builds
// the CheckResult to append. The uptime percentage is not touched here; it
// is recomputed from persisted history after the result is stored.
func Apply(svc *models.Service, out checker.Outcome, now time.Time) Transition {
	oldStatus := svc.Status

	checkedAt := now
	svc.LastCheckAt = &checkedAt
	svc.LastResponseTimeMS = out.ResponseTimeMS

	if out.IsHealthy {
		svc.ConsecutiveFails = 0
		svc.Status = models.StatusHealthy
	} else {
		svc.ConsecutiveFails++
		if svc.ConsecutiveFails >= unhealthyThreshold {
			svc.Status = models.StatusUnhealthy
		} else {
			svc.Status = models.StatusDegraded
		}
	}
	svc.UpdatedAt = now

	result := models.CheckResult{
		ID:             uuid.New(),
		ServiceID:      svc.ID,
		IsHealthy:      out.IsHealthy,
		StatusCode:     out.StatusCode,
		ResponseTimeMS: out.ResponseTimeMS,
		Message:        out.Message,
		Error:          out.Error,
		Metadata:       out.Metadata,
		CheckedAt:      checkedAt,
	}

	return Transition{
		Result:        result,
		OldStatus:     oldStatus,
		NewStatus:     svc.Status,
		StatusChanged: oldStatus != svc.Status,
	}
}

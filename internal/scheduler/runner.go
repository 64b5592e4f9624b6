package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"servicepulse/internal/checker"
	"servicepulse/internal/events"
	"servicepulse/internal/health"
	"servicepulse/internal/models"
)

// RunCheckNow executes a single check synchronously, sharing the execution
// phase and the concurrency budget with the scheduled path. A manual check
// and a scheduled check may race on the same service; last write wins.
func (s *Scheduler) RunCheckNow(ctx context.Context, serviceID uuid.UUID) (*models.CheckResult, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire check slot: %w", err)
	}
	defer s.sem.Release(1)

	result, err := s.executeCheck(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	log.Printf("manual check triggered service_id=%s healthy=%t", serviceID, result.IsHealthy)
	return result, nil
}

// executeCheck is the per-service execution phase used by both the poll
// loop and manual triggers: re-fetch fresh, probe, fold the outcome through
// the state machine, persist, recompute uptime, publish.
//
// On any persistence error the in-memory mutation is discarded; the stale
// last_check_at keeps the service due, so the next tick is the retry.
func (s *Scheduler) executeCheck(ctx context.Context, serviceID uuid.UUID) (*models.CheckResult, error) {
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive || svc.Status == models.StatusPaused {
		return nil, fmt.Errorf("%w: %s", ErrServiceInactive, svc.Name)
	}

	chk, err := s.newChecker(svc.Type, svc.Timeout())
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", svc.Name, err)
	}

	outcome := runProbe(ctx, chk, svc)

	tr := health.Apply(svc, outcome, s.now())

	if err := s.store.AppendCheckResult(ctx, &tr.Result); err != nil {
		return nil, fmt.Errorf("append check result: %w", err)
	}

	uptime, err := s.uptime.Compute(ctx, svc.ID, health.DefaultUptimeWindow)
	if err != nil {
		return nil, err
	}
	svc.UptimePercentage = uptime

	if err := s.store.SaveService(ctx, svc); err != nil {
		return nil, fmt.Errorf("save service: %w", err)
	}

	if s.board != nil {
		s.board.Update(svc)
	}

	s.publish(events.CheckCompleted, checkPayload(svc, &tr.Result))
	if tr.StatusChanged {
		payload := servicePayload(svc)
		payload["old_status"] = string(tr.OldStatus)
		payload["new_status"] = string(tr.NewStatus)
		s.publish(events.StatusChanged, payload)
	}

	return &tr.Result, nil
}

// runProbe invokes the checker with a catch-all: a checker that panics is
// a programming error, but it must still come back as an unhealthy outcome
// rather than take down the loop.
func runProbe(ctx context.Context, chk checker.Checker, svc *models.Service) (out checker.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] checker panic service=%s type=%s: %v", svc.Name, svc.Type, r)
			out = checker.Outcome{
				IsHealthy: false,
				Error:     fmt.Sprintf("check failed: %v", r),
			}
		}
	}()
	return chk.Check(ctx, svc.Target, svc.Config)
}

func (s *Scheduler) publish(eventType events.Type, payload map[string]any) {
	if err := s.publisher.Publish(eventType, payload); err != nil {
		log.Printf("[WARN] publish %s failed: %v", eventType, err)
	}
}

func servicePayload(svc *models.Service) map[string]any {
	var lastCheck any
	if svc.LastCheckAt != nil {
		lastCheck = svc.LastCheckAt.UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"id":                    svc.ID.String(),
		"name":                  svc.Name,
		"type":                  string(svc.Type),
		"target":                svc.Target,
		"status":                string(svc.Status),
		"is_active":             svc.IsActive,
		"last_check_at":         lastCheck,
		"last_response_time_ms": svc.LastResponseTimeMS,
		"uptime_percentage":     svc.UptimePercentage,
		"consecutive_failures":  svc.ConsecutiveFails,
	}
}

func checkPayload(svc *models.Service, result *models.CheckResult) map[string]any {
	return map[string]any{
		"service_id":       svc.ID.String(),
		"name":             svc.Name,
		"status":           string(svc.Status),
		"is_healthy":       result.IsHealthy,
		"status_code":      result.StatusCode,
		"response_time_ms": result.ResponseTimeMS,
		"message":          result.Message,
		"error":            result.Error,
		"checked_at":       result.CheckedAt.UTC().Format(time.RFC3339),
	}
}

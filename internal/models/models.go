package models

import (
	"time"

	"github.com/google/uuid"
)

// ServiceType selects which checker probes a service.
type ServiceType string

const (
	TypeHTTP  ServiceType = "http"
	TypeHTTPS ServiceType = "https"
	TypeTCP   ServiceType = "tcp"
	TypeSSL   ServiceType = "ssl"
	TypeDNS   ServiceType = "dns"
	TypePing  ServiceType = "ping"
)

// Valid reports whether t is one of the recognized service types.
func (t ServiceType) Valid() bool {
	switch t {
	case TypeHTTP, TypeHTTPS, TypeTCP, TypeSSL, TypeDNS, TypePing:
		return true
	}
	return false
}

// ServiceStatus is the rolling health state of a service.
type ServiceStatus string

const (
	StatusHealthy   ServiceStatus = "healthy"
	StatusDegraded  ServiceStatus = "degraded"
	StatusUnhealthy ServiceStatus = "unhealthy"
	StatusUnknown   ServiceStatus = "unknown"
	StatusPaused    ServiceStatus = "paused"
)

// Service is a monitored target definition plus its cached health state.
//
// Status is mutated only by configuration updates (toggle) and by the
// health state machine after each check. Paused iff not active.
type Service struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Type        ServiceType `json:"type"`

	// Target is a URL, host:port pair, or hostname depending on Type.
	// Config carries checker-specific options (expected_status, warn_days, ...).
	Target string         `json:"target"`
	Config map[string]any `json:"config,omitempty"`

	IntervalSeconds int `json:"interval_seconds"`
	TimeoutSeconds  int `json:"timeout_seconds"`

	Status   ServiceStatus `json:"status"`
	IsActive bool          `json:"is_active"`

	LastCheckAt        *time.Time `json:"last_check_at,omitempty"`
	LastResponseTimeMS float64    `json:"last_response_time_ms"`
	UptimePercentage   float64    `json:"uptime_percentage"`
	ConsecutiveFails   int        `json:"consecutive_failures"`

	Tags      []string `json:"tags,omitempty"`
	GroupName string   `json:"group_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Interval returns the check interval as a duration.
func (s *Service) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Timeout returns the per-attempt timeout as a duration.
func (s *Service) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// DueAt returns the next scheduled check time. A service that has never
// been checked is due immediately.
func (s *Service) DueAt() time.Time {
	if s.LastCheckAt == nil {
		return time.Time{}
	}
	return s.LastCheckAt.Add(s.Interval())
}

// CheckResult is one immutable record of a check execution.
type CheckResult struct {
	ID        uuid.UUID `json:"id"`
	ServiceID uuid.UUID `json:"service_id"`

	IsHealthy      bool    `json:"is_healthy"`
	StatusCode     int     `json:"status_code,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms"`

	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}

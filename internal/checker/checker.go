// Package checker holds the protocol-specific probes that decide whether a
// single target is healthy. Expected network failures (timeouts, refusals,
// DNS errors, TLS errors) never surface as Go errors; they are folded into
// the Outcome so a bad target cannot destabilize the caller.
package checker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"servicepulse/internal/models"
)

// ErrUnknownType is returned by New for an unrecognized service type.
// It is a configuration-time error and is never retried.
var ErrUnknownType = errors.New("unknown check type")

// Outcome is the transient result of one probe, before persistence.
type Outcome struct {
	IsHealthy      bool
	ResponseTimeMS float64
	StatusCode     int
	Message        string
	Error          string
	Metadata       map[string]any
}

// Checker probes one target and returns a verdict with diagnostics.
type Checker interface {
	Check(ctx context.Context, target string, config map[string]any) Outcome
}

// New returns the checker for the given service type, bound to a
// per-attempt timeout.
func New(t models.ServiceType, timeout time.Duration) (Checker, error) {
	switch t {
	case models.TypeHTTP, models.TypeHTTPS:
		return &HTTPChecker{Timeout: timeout}, nil
	case models.TypeTCP:
		return &TCPChecker{Timeout: timeout}, nil
	case models.TypeSSL:
		return &SSLChecker{Timeout: timeout}, nil
	case models.TypeDNS:
		return &DNSChecker{Timeout: timeout}, nil
	case models.TypePing:
		return &PingChecker{Timeout: timeout}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// Config maps come from YAML or JSON, so numbers may arrive as int, int64,
// uint64 or float64 and flags as bool or string. The accessors below
// normalize that instead of making every checker care.

func cfgString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func cfgInt(cfg map[string]any, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return def
}

func cfgBool(cfg map[string]any, key string, def bool) bool {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

func cfgStringMap(cfg map[string]any, key string) map[string]string {
	v, ok := cfg[key]
	if !ok {
		return nil
	}
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		for k, raw := range m {
			if s, ok := raw.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

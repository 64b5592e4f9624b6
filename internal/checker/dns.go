package checker

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DNSChecker resolves the target hostname.
//
// Config options:
//
//	expected_ip  when set, the first resolved address must equal it
type DNSChecker struct {
	Timeout time.Duration

	// resolver is overridable in tests; nil means net.DefaultResolver.
	resolver *net.Resolver
}

func (c *DNSChecker) Check(ctx context.Context, target string, config map[string]any) Outcome {
	start := time.Now()
	expectedIP := cfgString(config, "expected_ip", "")

	resolver := c.resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	addrs, err := resolver.LookupHost(ctx, target)
	if err != nil || len(addrs) == 0 {
		if err == nil {
			err = fmt.Errorf("no addresses for %s", target)
		}
		return Outcome{
			IsHealthy:      false,
			ResponseTimeMS: elapsedMS(start),
			Error:          fmt.Sprintf("DNS resolution failed: %v", err),
		}
	}

	resolved := addrs[0]
	healthy := true
	message := fmt.Sprintf("Resolved to %s", resolved)
	if expectedIP != "" && resolved != expectedIP {
		healthy = false
		message = fmt.Sprintf("Expected %s, got %s", expectedIP, resolved)
	}

	return Outcome{
		IsHealthy:      healthy,
		ResponseTimeMS: elapsedMS(start),
		Message:        message,
		Metadata: map[string]any{
			"resolved_ip":  resolved,
			"resolved_ips": addrs,
		},
	}
}

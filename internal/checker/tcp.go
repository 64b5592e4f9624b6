package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// TCPChecker verifies that a TCP connection to host:port can be established
// within the timeout. The connection is closed immediately on success.
type TCPChecker struct {
	Timeout time.Duration
}

func (c *TCPChecker) Check(ctx context.Context, target string, _ map[string]any) Outcome {
	if !strings.Contains(target, ":") {
		// Malformed target is a configuration problem, not a network one;
		// no time was spent probing.
		return Outcome{
			IsHealthy:      false,
			ResponseTimeMS: 0,
			Error:          "Invalid target format. Expected host:port",
		}
	}

	start := time.Now()
	dialer := net.Dialer{Timeout: c.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return Outcome{
			IsHealthy:      false,
			ResponseTimeMS: elapsedMS(start),
			Error:          classifyDialError(err, c.Timeout),
		}
	}
	_ = conn.Close()

	host, port, _ := net.SplitHostPort(target)
	return Outcome{
		IsHealthy:      true,
		ResponseTimeMS: elapsedMS(start),
		Message:        fmt.Sprintf("Successfully connected to %s", target),
		Metadata:       map[string]any{"host": host, "port": port},
	}
}

func classifyDialError(err error, timeout time.Duration) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection timeout after %s", timeout)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return "Connection refused"
	}
	return fmt.Sprintf("Connection failed: %v", err)
}

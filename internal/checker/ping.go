package checker

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// pingAvgRE pulls the average round-trip out of the min/avg/max summary line.
var pingAvgRE = regexp.MustCompile(`avg[^=]*=\s*[\d.]+/([\d.]+)/`)

// PingChecker shells out to the system ping binary for ICMP reachability,
// which avoids needing raw-socket privileges in the server process.
//
// Config options:
//
//	count  number of echo requests to send (default 3)
type PingChecker struct {
	Timeout time.Duration
}

func (c *PingChecker) Check(ctx context.Context, target string, config map[string]any) Outcome {
	start := time.Now()
	count := cfgInt(config, "count", 3)

	// Allow a little slack beyond ping's own deadline before killing it.
	ctx, cancel := context.WithTimeout(ctx, c.Timeout+5*time.Second)
	defer cancel()

	deadline := int(c.Timeout.Seconds())
	if deadline < 1 {
		deadline = 1
	}

	cmd := exec.CommandContext(ctx, "ping", "-c", strconv.Itoa(count), "-W", strconv.Itoa(deadline), target)
	output, err := cmd.CombinedOutput()
	ms := elapsedMS(start)

	if ctx.Err() == context.DeadlineExceeded {
		return Outcome{
			IsHealthy:      false,
			ResponseTimeMS: ms,
			Error:          fmt.Sprintf("Ping timeout after %s", c.Timeout),
		}
	}

	text := string(output)
	if len(text) > 500 {
		text = text[:500]
	}

	healthy := err == nil
	message := "Host is reachable"
	if !healthy {
		message = "Host unreachable"
	}

	// Prefer the parsed average round-trip over wall-clock elapsed time,
	// which includes the gaps between echo requests.
	if m := pingAvgRE.FindStringSubmatch(string(output)); m != nil {
		if avg, parseErr := strconv.ParseFloat(m[1], 64); parseErr == nil {
			ms = avg
		}
	}

	return Outcome{
		IsHealthy:      healthy,
		ResponseTimeMS: ms,
		Message:        message,
		Metadata:       map[string]any{"output": text},
	}
}

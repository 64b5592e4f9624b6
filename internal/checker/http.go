package checker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBodyBytes caps how much of the response we read for body matching.
const maxBodyBytes = 256 * 1024

// HTTPChecker probes HTTP and HTTPS endpoints.
//
// Config options:
//
//	method           HTTP method (default GET)
//	expected_status  status code that counts as healthy (default 200)
//	expected_body    substring that must appear in the response body
//	headers          extra request headers
//	verify_ssl       verify the TLS chain (default true)
//	follow_redirects follow redirects (default true)
type HTTPChecker struct {
	Timeout time.Duration
}

func (c *HTTPChecker) Check(ctx context.Context, target string, config map[string]any) Outcome {
	start := time.Now()

	method := strings.ToUpper(cfgString(config, "method", http.MethodGet))
	expectedStatus := cfgInt(config, "expected_status", 200)
	expectedBody := cfgString(config, "expected_body", "")
	headers := cfgStringMap(config, "headers")
	verifySSL := cfgBool(config, "verify_ssl", true)
	followRedirects := cfgBool(config, "follow_redirects", true)

	client := &http.Client{
		Timeout: c.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !verifySSL},
		},
	}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return Outcome{
			IsHealthy:      false,
			ResponseTimeMS: elapsedMS(start),
			Error:          fmt.Sprintf("build request: %v", err),
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Outcome{
			IsHealthy:      false,
			ResponseTimeMS: elapsedMS(start),
			Error:          classifyHTTPError(err, c.Timeout),
		}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	ms := elapsedMS(start)
	if readErr != nil {
		return Outcome{
			IsHealthy:      false,
			ResponseTimeMS: ms,
			StatusCode:     resp.StatusCode,
			Error:          fmt.Sprintf("read body: %v", readErr),
		}
	}

	statusOK := resp.StatusCode == expectedStatus
	bodyOK := expectedBody == "" || strings.Contains(string(body), expectedBody)

	var message string
	switch {
	case !statusOK:
		message = fmt.Sprintf("Expected status %d, got %d", expectedStatus, resp.StatusCode)
	case !bodyOK:
		message = "Response body does not contain expected content"
	}

	return Outcome{
		IsHealthy:      statusOK && bodyOK,
		ResponseTimeMS: ms,
		StatusCode:     resp.StatusCode,
		Message:        message,
		Metadata: map[string]any{
			"content_length": len(body),
		},
	}
}

// classifyHTTPError produces a stable, human-readable reason for a failed
// request instead of the raw transport error chain.
func classifyHTTPError(err error, timeout time.Duration) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Request timeout after %s", timeout)
	case errors.Is(err, context.Canceled):
		return "Request canceled"
	}
	// net/http wraps timeouts in *url.Error with Timeout()=true.
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Request timeout after %s", timeout)
	}
	return fmt.Sprintf("Connection failed: %v", err)
}

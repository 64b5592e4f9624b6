package checker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"servicepulse/internal/models"
)

// --- registry ---

func TestNew_AllTypes(t *testing.T) {
	types := []models.ServiceType{
		models.TypeHTTP, models.TypeHTTPS, models.TypeTCP,
		models.TypeSSL, models.TypeDNS, models.TypePing,
	}
	for _, typ := range types {
		c, err := New(typ, 5*time.Second)
		if err != nil {
			t.Errorf("New(%s) returned error: %v", typ, err)
		}
		if c == nil {
			t.Errorf("New(%s) returned nil checker", typ)
		}
	}
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New("carrier-pigeon", 5*time.Second)
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

// --- config accessors ---

func TestCfgInt_NumericTypes(t *testing.T) {
	cfg := map[string]any{
		"as_int":    7,
		"as_uint64": uint64(8),
		"as_float":  float64(9),
		"as_string": "10",
		"garbage":   "nope",
	}
	cases := map[string]int{
		"as_int": 7, "as_uint64": 8, "as_float": 9, "as_string": 10,
		"garbage": 42, "missing": 42,
	}
	for key, want := range cases {
		if got := cfgInt(cfg, key, 42); got != want {
			t.Errorf("cfgInt(%q) = %d, want %d", key, got, want)
		}
	}
}

func TestCfgBool(t *testing.T) {
	cfg := map[string]any{"flag": false, "str": "true"}
	if cfgBool(cfg, "flag", true) {
		t.Error("explicit false should win over default")
	}
	if !cfgBool(cfg, "str", false) {
		t.Error("string \"true\" should parse")
	}
	if !cfgBool(cfg, "missing", true) {
		t.Error("missing key should fall back to default")
	}
}

// --- HTTP checker ---

func TestHTTPChecker_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("service is up"))
	}))
	defer srv.Close()

	c := &HTTPChecker{Timeout: 5 * time.Second}
	out := c.Check(context.Background(), srv.URL, nil)

	if !out.IsHealthy {
		t.Errorf("expected healthy, got error=%q message=%q", out.Error, out.Message)
	}
	if out.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", out.StatusCode)
	}
	if out.ResponseTimeMS < 0 {
		t.Errorf("ResponseTimeMS = %f, want >= 0", out.ResponseTimeMS)
	}
}

func TestHTTPChecker_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &HTTPChecker{Timeout: 5 * time.Second}
	out := c.Check(context.Background(), srv.URL, map[string]any{"expected_status": 200})

	if out.IsHealthy {
		t.Error("expected unhealthy on 500")
	}
	if out.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", out.StatusCode)
	}
	if !strings.Contains(out.Message, "Expected status 200") || !strings.Contains(out.Message, "500") {
		t.Errorf("message should mention expected vs actual, got %q", out.Message)
	}
}

func TestHTTPChecker_ExpectedStatusNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	c := &HTTPChecker{Timeout: 5 * time.Second}
	out := c.Check(context.Background(), srv.URL, map[string]any{"expected_status": 418})
	if !out.IsHealthy {
		t.Errorf("418 should be healthy when expected, got message=%q", out.Message)
	}
}

func TestHTTPChecker_BodyMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("all systems nominal"))
	}))
	defer srv.Close()

	c := &HTTPChecker{Timeout: 5 * time.Second}

	out := c.Check(context.Background(), srv.URL, map[string]any{"expected_body": "nominal"})
	if !out.IsHealthy {
		t.Errorf("substring present, expected healthy; message=%q", out.Message)
	}

	out = c.Check(context.Background(), srv.URL, map[string]any{"expected_body": "on fire"})
	if out.IsHealthy {
		t.Error("substring absent, expected unhealthy")
	}
	if out.Message == "" {
		t.Error("expected a message explaining the body mismatch")
	}
}

func TestHTTPChecker_ExtraHeaders(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Probe")
	}))
	defer srv.Close()

	c := &HTTPChecker{Timeout: 5 * time.Second}
	c.Check(context.Background(), srv.URL, map[string]any{
		"headers": map[string]any{"X-Probe": "servicepulse"},
	})
	if gotHeader != "servicepulse" {
		t.Errorf("X-Probe header = %q, want servicepulse", gotHeader)
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := &HTTPChecker{Timeout: 50 * time.Millisecond}
	out := c.Check(context.Background(), srv.URL, nil)

	if out.IsHealthy {
		t.Error("expected unhealthy on timeout")
	}
	if !strings.Contains(out.Error, "timeout") {
		t.Errorf("error should mention timeout, got %q", out.Error)
	}
	if out.ResponseTimeMS <= 0 {
		t.Error("elapsed time should be recorded on the failure path")
	}
}

func TestHTTPChecker_ConnectionRefused(t *testing.T) {
	// Grab a port nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := &HTTPChecker{Timeout: 2 * time.Second}
	out := c.Check(context.Background(), "http://"+addr, nil)

	if out.IsHealthy {
		t.Error("expected unhealthy on refused connection")
	}
	if out.Error == "" {
		t.Error("expected a descriptive error")
	}
}

func TestHTTPChecker_NoRedirectFollow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	c := &HTTPChecker{Timeout: 5 * time.Second}
	out := c.Check(context.Background(), srv.URL, map[string]any{
		"follow_redirects": false,
		"expected_status":  302,
	})
	if !out.IsHealthy {
		t.Errorf("302 should be observed directly, got status=%d", out.StatusCode)
	}
}

// --- TCP checker ---

func TestTCPChecker_Healthy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	c := &TCPChecker{Timeout: 2 * time.Second}
	out := c.Check(context.Background(), ln.Addr().String(), nil)

	if !out.IsHealthy {
		t.Errorf("expected healthy, got error=%q", out.Error)
	}
	if out.Metadata["host"] != "127.0.0.1" {
		t.Errorf("metadata host = %v", out.Metadata["host"])
	}
}

func TestTCPChecker_MalformedTarget(t *testing.T) {
	c := &TCPChecker{Timeout: 2 * time.Second}
	out := c.Check(context.Background(), "badformat", nil)

	if out.IsHealthy {
		t.Error("expected unhealthy for malformed target")
	}
	if out.ResponseTimeMS != 0 {
		t.Errorf("ResponseTimeMS = %f, want 0 for malformed target", out.ResponseTimeMS)
	}
	if !strings.Contains(out.Error, "Invalid target format") {
		t.Errorf("error should mention invalid format, got %q", out.Error)
	}
}

func TestTCPChecker_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := &TCPChecker{Timeout: 2 * time.Second}
	out := c.Check(context.Background(), addr, nil)

	if out.IsHealthy {
		t.Error("expected unhealthy on refused connection")
	}
	if out.Error == "" {
		t.Error("expected a descriptive error")
	}
}

// --- SSL checker ---

func TestSSLChecker_MetadataAndVerdict(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	target := strings.TrimPrefix(srv.URL, "https://")
	c := &SSLChecker{Timeout: 5 * time.Second}

	// httptest's certificate expires decades out, so warn_days=30 is healthy.
	out := c.Check(context.Background(), target, map[string]any{"warn_days": 30})
	if !out.IsHealthy {
		t.Errorf("expected healthy, got error=%q message=%q", out.Error, out.Message)
	}

	days, ok := out.Metadata["days_until_expiry"].(int)
	if !ok {
		t.Fatalf("metadata days_until_expiry missing or wrong type: %v", out.Metadata)
	}
	if days <= 0 {
		t.Errorf("days_until_expiry = %d, want > 0", days)
	}
	for _, key := range []string{"subject", "issuer", "serial_number", "expires_at"} {
		if _, ok := out.Metadata[key]; !ok {
			t.Errorf("metadata missing %q", key)
		}
	}
}

func TestSSLChecker_ExpiringWithinWarnWindow(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	target := strings.TrimPrefix(srv.URL, "https://")
	cert := srv.Certificate()

	// Pin "now" to 10 days before the certificate expires.
	c := &SSLChecker{
		Timeout: 5 * time.Second,
		now:     func() time.Time { return cert.NotAfter.Add(-10*24*time.Hour - time.Hour) },
	}
	out := c.Check(context.Background(), target, map[string]any{"warn_days": 30})

	if out.IsHealthy {
		t.Error("expected unhealthy inside warn window")
	}
	if days := out.Metadata["days_until_expiry"]; days != 10 {
		t.Errorf("days_until_expiry = %v, want 10", days)
	}
	if !strings.Contains(out.Message, "expires in 10 days") {
		t.Errorf("message = %q", out.Message)
	}
}

func TestSSLChecker_DefaultPort(t *testing.T) {
	c := &SSLChecker{Timeout: 200 * time.Millisecond}
	// No listener on 443 locally; the point is that a bare hostname does
	// not error out on parsing, it fails at the handshake.
	out := c.Check(context.Background(), "127.0.0.1", nil)
	if out.IsHealthy {
		t.Error("expected unhealthy")
	}
	if !strings.Contains(out.Error, "TLS handshake failed") {
		t.Errorf("error = %q", out.Error)
	}
}

// --- DNS checker ---

func TestDNSChecker_Resolves(t *testing.T) {
	c := &DNSChecker{Timeout: 5 * time.Second}
	out := c.Check(context.Background(), "localhost", nil)

	if !out.IsHealthy {
		t.Errorf("localhost should resolve, got error=%q", out.Error)
	}
	if out.Metadata["resolved_ip"] == "" {
		t.Error("expected resolved_ip in metadata")
	}
}

func TestDNSChecker_ExpectedIPMismatch(t *testing.T) {
	c := &DNSChecker{Timeout: 5 * time.Second}
	out := c.Check(context.Background(), "localhost", map[string]any{
		"expected_ip": "203.0.113.7",
	})

	if out.IsHealthy {
		t.Error("expected unhealthy on IP mismatch")
	}
	if !strings.Contains(out.Message, "Expected 203.0.113.7") {
		t.Errorf("message = %q", out.Message)
	}
}

func TestDNSChecker_ResolutionFailure(t *testing.T) {
	c := &DNSChecker{Timeout: 2 * time.Second}
	out := c.Check(context.Background(), "this-host-does-not-exist.invalid", nil)

	if out.IsHealthy {
		t.Error("expected unhealthy for unresolvable host")
	}
	if !strings.Contains(out.Error, "DNS resolution failed") {
		t.Errorf("error = %q", out.Error)
	}
}

package checker

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// SSLChecker inspects the certificate presented by host[:port] (default
// port 443) and reports how close it is to expiry.
//
// The handshake skips chain verification on purpose: the point is
// certificate tracking, and an untrusted or self-signed chain still has an
// expiry date worth reporting. Certificate details go into metadata
// regardless of the health verdict.
//
// Config options:
//
//	warn_days  unhealthy when the certificate expires within this many days (default 30)
type SSLChecker struct {
	Timeout time.Duration

	// now is overridable for deterministic expiry math in tests.
	now func() time.Time
}

func (c *SSLChecker) Check(ctx context.Context, target string, config map[string]any) Outcome {
	start := time.Now()
	warnDays := cfgInt(config, "warn_days", 30)

	addr := target
	host := target
	if h, _, err := net.SplitHostPort(target); err == nil {
		host = h
	} else {
		addr = net.JoinHostPort(target, "443")
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.Timeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true,
		},
	}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Outcome{
			IsHealthy:      false,
			ResponseTimeMS: elapsedMS(start),
			Error:          fmt.Sprintf("TLS handshake failed: %v", err),
		}
	}
	conn := rawConn.(*tls.Conn)
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return Outcome{
			IsHealthy:      false,
			ResponseTimeMS: elapsedMS(start),
			Error:          "Could not retrieve SSL certificate",
		}
	}

	cert := certs[0]
	now := time.Now()
	if c.now != nil {
		now = c.now()
	}
	daysUntilExpiry := int(cert.NotAfter.Sub(now).Hours() / 24)

	var message string
	switch {
	case daysUntilExpiry <= 0:
		message = "Certificate has expired!"
	case daysUntilExpiry <= warnDays:
		message = fmt.Sprintf("Certificate expires in %d days", daysUntilExpiry)
	}

	return Outcome{
		IsHealthy:      daysUntilExpiry > warnDays,
		ResponseTimeMS: elapsedMS(start),
		Message:        message,
		Metadata: map[string]any{
			"subject":           cert.Subject.String(),
			"issuer":            cert.Issuer.String(),
			"serial_number":     cert.SerialNumber.String(),
			"expires_at":        cert.NotAfter.UTC().Format(time.RFC3339),
			"days_until_expiry": daysUntilExpiry,
			"is_valid":          daysUntilExpiry > 0,
		},
	}
}

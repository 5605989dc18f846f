package transport

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
)

// PreflightHosts probes each host with a TCP dial and an HTTP GET,
// per §4.2's "before any login attempt, probe a list of known
// hostnames via TCP and HTTP with configured timeout". Returns
// NetworkUnavailable only if every host fails both probes.
func PreflightHosts(ctx context.Context, hosts []string, timeout time.Duration) error {
	if len(hosts) == 0 {
		return nil
	}

	for _, host := range hosts {
		if probeTCP(ctx, host, timeout) || probeHTTP(ctx, host, timeout) {
			return nil
		}
	}
	return apperrors.New(apperrors.KindNetworkUnavailable, "no configured host reachable")
}

func probeTCP(ctx context.Context, host string, timeout time.Duration) bool {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func probeHTTP(ctx context.Context, host string, timeout time.Duration) bool {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+host, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"envelopes/internal/log"
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
	BlockedRequests    int64
}

// Detector resolves client addresses behind trusted proxies and flags
// requests that look like probing.
type Detector struct {
	metrics        *DetectionMetrics
	trustedProxies []*net.IPNet
}

var (
	probePatterns = []string{
		"../", "..\\", ".env", ".git", "wp-admin", "phpmyadmin",
		"etc/passwd", "<script", "union select",
	}
	scannerAgents = []string{"sqlmap", "nikto", "nmap", "gobuster", "dirb"}
)

// NewDetector trusts loopback and private networks as proxies
func NewDetector() *Detector {
	d := &Detector{metrics: &DetectionMetrics{}}
	for _, cidr := range []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"} {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

// Inspect returns why a request looks like probing, or "" when it does not.
// Path traversal is reported as blocking.
func (d *Detector) Inspect(r *http.Request) (reason string, block bool) {
	target := strings.ToLower(r.URL.Path + "?" + r.URL.RawQuery)
	for _, p := range probePatterns {
		if strings.Contains(target, p) {
			return "pattern " + p, p == "../" || p == "..\\"
		}
	}
	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			return "scanner agent " + a, false
		}
	}
	switch r.Method {
	case "TRACE", "TRACK", "CONNECT":
		return "method " + r.Method, true
	}
	if len(r.URL.String()) > 2048 {
		return "oversized url", true
	}
	return "", false
}

// Middleware logs suspicious requests and rejects the blocking ones
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason, block := d.Inspect(r)
		if reason == "" {
			next.ServeHTTP(w, r)
			return
		}
		atomic.AddInt64(&d.metrics.SuspiciousRequests, 1)
		log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
			log.FieldComponent, log.ComponentSecurity,
			log.FieldClientIP, d.ExtractClientIP(r),
			log.FieldPath, r.URL.Path,
			"reason", reason,
			"blocked", block)
		if block {
			atomic.AddInt64(&d.metrics.BlockedRequests, 1)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractClientIP returns the forwarded client address when the direct peer
// is a trusted proxy, the peer address otherwise.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	parsed := net.ParseIP(directIP)
	if parsed == nil || !d.isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns current security metrics
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: atomic.LoadInt64(&d.metrics.SuspiciousRequests),
		BlockedRequests:    atomic.LoadInt64(&d.metrics.BlockedRequests),
	}
}

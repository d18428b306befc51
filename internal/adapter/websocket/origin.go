package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a session.
//
// Requests without an Origin header (non-browser clients) always pass. With
// no configured origins every origin passes, which keeps single-host setups
// working without APP_URL.
type OriginPolicy struct {
	allowed        map[string]struct{}
	allowLocalhost bool
}

// NewOriginPolicy allows the origin of appURL plus extra origins. Localhost
// origins pass as well when allowLocalhost is set.
func NewOriginPolicy(appURL string, extra []string, allowLocalhost bool) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}), allowLocalhost: allowLocalhost}
	for _, raw := range append([]string{appURL}, extra...) {
		if o := extractOrigin(strings.TrimSpace(raw)); o != "" {
			p.allowed[o] = struct{}{}
		}
	}
	return p
}

// Check has the signature of websocket.Upgrader.CheckOrigin.
func (p *OriginPolicy) Check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(p.allowed) == 0 {
		return true
	}

	normalized := extractOrigin(origin)
	if _, ok := p.allowed[normalized]; ok {
		return true
	}
	if p.allowLocalhost && isLocalhostOrigin(origin) {
		return true
	}

	slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
	return false
}

// extractOrigin reduces a URL to scheme://host[:port], lower-cased.
func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

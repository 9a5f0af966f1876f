// Package server normalizes and checks HTTP origins for WebSocket upgrades
// so only configured frontends can open relay connections.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy is the allow-list compiled from configuration. A single "*"
// entry disables the check entirely.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	logger   *slog.Logger
}

func newOriginPolicy(origins []string, logger *slog.Logger) *originPolicy {
	p := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		logger:  logger,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid configured origin", "origin", origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}
	return p
}

// normalizeOrigin reduces an origin to lowercase scheme://host so that
// header comparison is case- and formatting-insensitive.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check is the upgrader's CheckOrigin hook.
func (p *originPolicy) check(r *http.Request) bool {
	if p.allowAll {
		return true
	}

	header := r.Header.Get("Origin")
	if header == "" {
		// Non-browser clients (the terminal client, tooling) send no
		// Origin header; the allow-list only polices browsers.
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if !ok {
		p.logger.Warn("blocked upgrade with unparsable origin", "origin", header)
		return false
	}
	if _, allowed := p.allowed[normalized]; !allowed {
		p.logger.Warn("blocked upgrade from disallowed origin", "origin", header)
		return false
	}
	return true
}

package server

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// OriginChecker allows every origin when no origins are configured, which
// matches how the front-ends are usually served from another dev port.
type OriginChecker struct {
	allowedOrigins []string
}

func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	normalized := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
		if origin != "" {
			normalized = append(normalized, origin)
		}
	}

	return &OriginChecker{
		allowedOrigins: normalized,
	}
}

func (c *OriginChecker) Check(r *http.Request) bool {
	if len(c.allowedOrigins) == 0 || slices.Contains(c.allowedOrigins, "*") {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}

	return slices.Contains(c.allowedOrigins, strings.ToLower(u.Scheme+"://"+u.Host))
}

// Package baseurl turns relative artifact paths into absolute URLs.
//
// The origin is supplied once at process start and is immutable afterwards.
// Construction fails fast on a missing or malformed origin: a silently empty
// base URL would only surface as broken links on a remote client, far from
// the root cause.
package baseurl

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolver joins a fixed origin with relative artifact paths.
type Resolver struct {
	origin string
}

// New parses and validates origin (e.g. "https://widgets.example.com") and
// returns a Resolver. The origin must carry a scheme and host; a trailing
// slash is tolerated and stripped.
func New(origin string) (*Resolver, error) {
	if strings.TrimSpace(origin) == "" {
		return nil, fmt.Errorf("baseurl: origin is empty, set assets.base_url or ORRERY_BASE_URL")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("baseurl: parse origin %q: %w", origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("baseurl: origin %q must include scheme and host", origin)
	}
	return &Resolver{origin: strings.TrimRight(u.String(), "/")}, nil
}

// Origin returns the configured origin without a trailing slash.
func (r *Resolver) Origin() string {
	return r.origin
}

// Absolute returns the absolute URL for a relative artifact path,
// normalising exactly one separating slash between origin and path.
func (r *Resolver) Absolute(relativePath string) string {
	return r.origin + "/" + strings.TrimLeft(relativePath, "/")
}

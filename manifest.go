package offcache

import (
	"fmt"
	"net/http"
	"net/url"
)

// Manifest is the ordered list of resources that must be available offline:
// same-origin paths ("/index.html") and absolute cross-origin URLs. It is fixed
// for the lifetime of a generation; changing it requires a new generation.
type Manifest []string

// Resolve turns every entry into an absolute GET request in cors mode.
// Relative entries need an origin. Entries that resolve to the same identity
// are rejected, as are empty ones.
func (m Manifest) Resolve(origin *url.URL) ([]*Request, error) {
	out := make([]*Request, 0, len(m))
	seen := make(map[string]int, len(m))
	for i, raw := range m {
		if raw == "" {
			return nil, fmt.Errorf("offcache: manifest entry %d is empty", i)
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("offcache: manifest entry %d: %w", i, err)
		}
		if !u.IsAbs() {
			if origin == nil {
				return nil, fmt.Errorf("offcache: manifest entry %q is relative and no origin is set", raw)
			}
			u = origin.ResolveReference(u)
		}
		req := &Request{Method: http.MethodGet, URL: u, Header: make(http.Header), Mode: ModeCORS}
		id := req.Identity()
		if j, dup := seen[id]; dup {
			return nil, fmt.Errorf("offcache: manifest entries %d and %d are the same request %s", j, i, id)
		}
		seen[id] = i
		out = append(out, req)
	}
	return out, nil
}

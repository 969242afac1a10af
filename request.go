package offcache

import (
	"net/http"
	"net/url"
	"strings"
)

// Mode is the request mode as a browser would report it.
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeSameOrigin Mode = "same-origin"
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
)

// Destination says what the response will be used for.
type Destination string

const (
	DestinationEmpty    Destination = ""
	DestinationDocument Destination = "document"
	DestinationStyle    Destination = "style"
	DestinationScript   Destination = "script"
	DestinationImage    Destination = "image"
	DestinationFont     Destination = "font"
)

// Request is an outbound request as seen by the controller. Body is buffered:
// a request may be sent to the network after it was looked up in the cache.
type Request struct {
	Method      string
	URL         *url.URL
	Header      http.Header
	Body        []byte
	Mode        Mode
	Destination Destination
}

// NewRequest builds a GET request for rawURL. Relative URLs are kept relative;
// the controller resolves them against its origin.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{Method: strings.ToUpper(method), URL: u, Header: make(http.Header)}, nil
}

// FromHTTP converts an *http.Request. The caller must already have drained
// r.Body into body. Mode and destination come from fetch metadata headers.
// Without them a GET that accepts text/html is taken as a navigation.
func FromHTTP(r *http.Request, body []byte) *Request {
	req := &Request{
		Method: strings.ToUpper(coalesce(r.Method, http.MethodGet)),
		URL:    r.URL,
		Header: r.Header.Clone(),
		Body:   body,
		Mode:   Mode(strings.ToLower(r.Header.Get("Sec-Fetch-Mode"))),
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	switch d := strings.ToLower(r.Header.Get("Sec-Fetch-Dest")); d {
	case "", "empty":
	case "iframe", "frame":
		req.Destination = DestinationDocument
	default:
		req.Destination = Destination(d)
	}
	if req.Mode == "" && req.Destination == DestinationEmpty &&
		req.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
		req.Mode = ModeNavigate
		req.Destination = DestinationDocument
	}
	return req
}

// IsNavigation reports whether the request loads a whole document.
func (r *Request) IsNavigation() bool {
	return r.Mode == ModeNavigate || r.Destination == DestinationDocument
}

// Identity is the cache key: method plus absolute URL without fragment.
// Relative URLs must be resolved first (see Controller).
func (r *Request) Identity() string {
	return identity(r.Method, r.URL)
}

func identity(method string, u *url.URL) string {
	cp := *u
	cp.Fragment = ""
	cp.RawFragment = ""
	return strings.ToUpper(method) + " " + cp.String()
}

// resolved returns a shallow copy whose URL is absolute against base.
func (r *Request) resolved(base *url.URL) *Request {
	cp := *r
	if base != nil && !r.URL.IsAbs() {
		cp.URL = base.ResolveReference(r.URL)
	}
	if cp.Header == nil {
		cp.Header = make(http.Header)
	}
	if cp.Method == "" {
		cp.Method = http.MethodGet
	}
	return &cp
}

// varyValues collects the request header values named by a Vary header.
// ok is false for "Vary: *", which never matches a later request.
func varyValues(vary []string, h http.Header) (map[string]string, bool) {
	var out map[string]string
	for _, line := range vary {
		for _, name := range strings.Split(line, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if name == "*" {
				return nil, false
			}
			if out == nil {
				out = make(map[string]string)
			}
			out[http.CanonicalHeaderKey(name)] = strings.Join(h.Values(name), ", ")
		}
	}
	return out, true
}

// varyMatches reports whether h carries the same values that were recorded
// when the entry was stored.
func varyMatches(recorded map[string]string, h http.Header) bool {
	for name, want := range recorded {
		if strings.Join(h.Values(name), ", ") != want {
			return false
		}
	}
	return true
}

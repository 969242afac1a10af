package offcache

import (
	"net/http"
	"time"

	"github.com/unkn0wn-root/offcache/cachestore"
)

// ResponseType mirrors the platform's response classification.
type ResponseType string

const (
	// TypeBasic is a same-origin response.
	TypeBasic ResponseType = "basic"
	// TypeCORS is a cross-origin response the caller may inspect.
	TypeCORS ResponseType = "cors"
	// TypeOpaque is a cross-origin response whose body and status are hidden.
	TypeOpaque ResponseType = "opaque"
	// TypeError is a synthetic network-error response.
	TypeError ResponseType = "error"
)

// Source says which of cache, network or fallback answered a request.
type Source string

const (
	SourceCache    Source = "cache"
	SourceNetwork  Source = "network"
	SourceFallback Source = "fallback"
)

// Response is a fully buffered response.
type Response struct {
	URL        string
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	Type       ResponseType
	Redirected bool

	// Source and StoredAt are set by the controller; StoredAt only for
	// cache and fallback answers.
	Source   Source
	StoredAt time.Time
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status <= 299 }

// cacheable is the fetch-time store rule: same-origin, not redirected, exactly 200.
func (r *Response) cacheable() bool {
	return r.Type == TypeBasic && !r.Redirected && r.Status == http.StatusOK
}

// Clone duplicates the response, body included, so that one copy can be handed
// to the caller while the other is stored.
func (r *Response) Clone() *Response {
	cp := *r
	cp.Header = r.Header.Clone()
	if r.Body != nil {
		cp.Body = make([]byte, len(r.Body))
		copy(cp.Body, r.Body)
	}
	return &cp
}

func (r *Response) record(vary map[string]string) cachestore.Record {
	return cachestore.Record{
		URL:        r.URL,
		Status:     r.Status,
		StatusText: r.StatusText,
		Header:     r.Header,
		Body:       r.Body,
		Type:       string(r.Type),
		Redirected: r.Redirected,
		Vary:       vary,
	}
}

func fromRecord(rec cachestore.Record, src Source) *Response {
	h := rec.Header
	if h == nil {
		h = make(http.Header)
	}
	return &Response{
		URL:        rec.URL,
		Status:     rec.Status,
		StatusText: rec.StatusText,
		Header:     h,
		Body:       rec.Body,
		Type:       ResponseType(rec.Type),
		Redirected: rec.Redirected,
		Source:     src,
		StoredAt:   rec.StoredAt,
	}
}

package offcache

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Fetcher is the network transport. An error means no response could be
// obtained at all; HTTP error statuses are responses, not errors.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) { return f(ctx, req) }

// HTTPFetcher is the default Fetcher, built on net/http.
//
// Responses are classified against Origin: same-origin answers are basic,
// cross-origin answers are cors, or opaque for no-cors requests. With a nil
// Origin nothing is same-origin, so no answer is ever basic. Opaque responses keep their status and body
// so an edge can still forward them; they are never stored by interception.
//
// No timeout is applied unless the Client carries one.
type HTTPFetcher struct {
	Client *http.Client
	Origin *url.URL
}

var _ Fetcher = (*HTTPFetcher)(nil)

func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		if isHopHeader(k) {
			continue
		}
		hr.Header[k] = append([]string(nil), vs...)
	}

	resp, err := client.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	header := resp.Header.Clone()
	for k := range header {
		if isHopHeader(k) {
			header.Del(k)
		}
	}
	return &Response{
		URL:        finalURL.String(),
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     header,
		Body:       b,
		Type:       f.classify(req),
		Redirected: finalURL.String() != req.URL.String(),
	}, nil
}

func (f *HTTPFetcher) classify(req *Request) ResponseType {
	if f.Origin != nil && sameOrigin(f.Origin, req.URL) {
		return TypeBasic
	}
	if req.Mode == ModeNoCORS {
		return TypeOpaque
	}
	return TypeCORS
}

// statusText strips the code from "200 OK".
func statusText(resp *http.Response) string {
	if i := strings.IndexByte(resp.Status, ' '); i >= 0 {
		return resp.Status[i+1:]
	}
	return http.StatusText(resp.StatusCode)
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// hop-by-hop headers, RFC 9110 section 7.6.1
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func isHopHeader(k string) bool {
	_, ok := hopHeaders[http.CanonicalHeaderKey(k)]
	return ok
}

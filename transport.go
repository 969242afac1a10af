package offcache

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
)

// Transport is an http.RoundTripper that answers a Go client's requests
// through a Controller, so that the client keeps working offline for
// everything in the current generation.
//
// The controller's Fetcher MUST NOT use a client built on this Transport.
type Transport struct {
	c Controller
}

var _ http.RoundTripper = (*Transport)(nil)

func NewTransport(c Controller) *Transport { return &Transport{c: c} }

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	body, err := drain(r)
	if err != nil {
		return nil, err
	}
	resp, err := t.c.Fetch(r.Context(), FromHTTP(r, body))
	if err != nil {
		return nil, err
	}
	return toHTTP(resp, r), nil
}

func drain(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func toHTTP(resp *Response, r *http.Request) *http.Response {
	h := resp.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set(HeaderSource, string(resp.Source))
	text := resp.StatusText
	if text == "" {
		text = http.StatusText(resp.Status)
	}
	return &http.Response{
		Status:        strconv.Itoa(resp.Status) + " " + text,
		StatusCode:    resp.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       r,
	}
}

// HeaderSource is added to every answer produced by Transport and Handler.
const HeaderSource = "X-Offcache-Source"

// Handler serves requests from a Controller in front of an origin. The
// incoming path and query are mapped onto the origin.
type Handler struct {
	c      Controller
	origin string
	log    Logger
}

var _ http.Handler = (*Handler)(nil)

// NewHandler returns a Handler for origin (scheme://host). log may be nil.
func NewHandler(c Controller, origin string, log Logger) *Handler {
	if log == nil {
		log = NopLogger{}
	}
	return &Handler{c: c, origin: origin, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := drain(r)
	if err != nil {
		http.Error(w, "read request body", http.StatusBadRequest)
		return
	}
	req := FromHTTP(r, body)
	u, err := req.URL.Parse(h.origin + r.URL.RequestURI())
	if err != nil {
		http.Error(w, "bad request target", http.StatusBadRequest)
		return
	}
	req.URL = u

	resp, err := h.c.Fetch(r.Context(), req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		h.log.Warn("request failed", Fields{"url": u.String(), "err": err})
		http.Error(w, http.StatusText(status), status)
		return
	}

	for k, vs := range resp.Header {
		if isHopHeader(k) {
			continue
		}
		w.Header()[k] = append([]string(nil), vs...)
	}
	w.Header().Set(HeaderSource, string(resp.Source))
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

package offcache

import (
	"context"
	"fmt"
)

// EventKind keys the controller's dispatch table.
type EventKind uint8

const (
	EventInstall EventKind = iota + 1
	EventActivate
	EventFetch
	EventSync
)

func (k EventKind) String() string {
	switch k {
	case EventInstall:
		return "install"
	case EventActivate:
		return "activate"
	case EventFetch:
		return "fetch"
	case EventSync:
		return "sync"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is one platform-dispatched event. Request is used by fetch, Tag by sync.
type Event struct {
	Kind    EventKind
	Request *Request
	Tag     string
}

// Completion is the awaitable result of a dispatched event. The event is not
// settled until Done is closed; Close on the controller waits for every
// outstanding Completion.
type Completion struct {
	done chan struct{}
	resp *Response
	err  error
}

func newCompletion() *Completion { return &Completion{done: make(chan struct{})} }

func settled(resp *Response, err error) *Completion {
	c := newCompletion()
	c.resolve(resp, err)
	return c
}

func (c *Completion) resolve(resp *Response, err error) {
	c.resp, c.err = resp, err
	close(c.done)
}

// Done is closed once the handler has finished.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Wait blocks until the handler finishes or ctx ends. ctx ending does not
// cancel the handler.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Response is the fetch result; nil for other events or before Done.
func (c *Completion) Response() *Response {
	select {
	case <-c.done:
		return c.resp
	default:
		return nil
	}
}

// Err is the handler error; nil before Done.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

type handlerFunc func(ctx context.Context, ev Event) (*Response, error)

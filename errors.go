package offcache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrGenerationRequired = errors.New("offcache: generation is required")
	ErrOriginRequired     = errors.New("offcache: origin is required with the default fetcher")
	ErrNotInstalled       = errors.New("offcache: generation is not installed")
	ErrNoFallback         = errors.New("offcache: fallback document is not cached")
	ErrUnknownEvent       = errors.New("offcache: unknown event kind")
	ErrInvalidRequest     = errors.New("offcache: request has no URL")
	ErrClosed             = errors.New("offcache: controller closed")
	errNilResponse        = errors.New("fetcher returned no response")
)

// StatusError is a manifest entry that answered with a non-2xx status.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status %d", e.Status) }

// EntryError is one manifest entry that could not be fetched or stored.
type EntryError struct {
	URL string
	Err error
}

func (e *EntryError) Error() string { return e.URL + ": " + e.Err.Error() }
func (e *EntryError) Unwrap() error { return e.Err }

// InstallError reports a failed Install. Nothing from the batch was stored
// unless the failure happened while writing.
type InstallError struct {
	Generation string
	Total      int
	Entries    []*EntryError
	// OpenErr is set when the generation itself could not be opened.
	OpenErr error
}

func (e *InstallError) Error() string {
	if e.OpenErr != nil {
		return fmt.Sprintf("install %q: open cache: %v", e.Generation, e.OpenErr)
	}
	parts := make([]string, 0, len(e.Entries))
	for _, ee := range e.Entries {
		parts = append(parts, ee.Error())
	}
	return fmt.Sprintf("install %q: %d of %d manifest entries failed: %s",
		e.Generation, len(e.Entries), e.Total, strings.Join(parts, "; "))
}

func (e *InstallError) Unwrap() []error {
	errs := make([]error, 0, len(e.Entries)+1)
	if e.OpenErr != nil {
		errs = append(errs, e.OpenErr)
	}
	for _, ee := range e.Entries {
		errs = append(errs, ee)
	}
	return errs
}

// NetworkError is a request that got no response from the network and no
// fallback either.
type NetworkError struct {
	Identity   string
	Navigation bool
	// NoFallback is set for navigations whose fallback document was not cached.
	NoFallback bool
	Err        error
}

func (e *NetworkError) Error() string {
	if e.NoFallback {
		return fmt.Sprintf("offcache: fetch %s: %v (fallback not cached)", e.Identity, e.Err)
	}
	return fmt.Sprintf("offcache: fetch %s: %v", e.Identity, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	if e.NoFallback {
		return []error{e.Err, ErrNoFallback}
	}
	return []error{e.Err}
}

package offcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

func (c *controller) OnSync(tag string, fn SyncFunc) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	if fn == nil {
		delete(c.syncTasks, tag)
		return
	}
	c.syncTasks[tag] = fn
}

func (c *controller) RequestSync(tag string) {
	if tag == "" {
		return
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	if !slices.Contains(c.pending, tag) {
		c.pending = append(c.pending, tag)
	}
}

// Online dispatches one sync event per pending tag and waits for all of them.
// A tag whose body is still running from an earlier call stays pending and is
// not started again. Tags whose body failed are put back once the body has
// returned, even if ctx ended the wait first.
func (c *controller) Online(ctx context.Context) error {
	c.hooks.ConnectivityChanged(true)

	c.syncMu.Lock()
	var tags, busy []string
	for _, tag := range c.pending {
		if _, ok := c.running[tag]; ok {
			busy = append(busy, tag)
			continue
		}
		c.running[tag] = struct{}{}
		tags = append(tags, tag)
	}
	c.pending = busy
	c.syncMu.Unlock()
	if len(tags) == 0 {
		return nil
	}

	waits := make([]*Completion, len(tags))
	for i, tag := range tags {
		waits[i] = c.Dispatch(ctx, Event{Kind: EventSync, Tag: tag})
	}

	var errs []error
	for i, w := range waits {
		var err error
		select {
		case <-w.Done():
			err = w.Err()
			c.finishSync(tags[i], err)
		case <-ctx.Done():
			err = ctx.Err()
			c.finishLater(tags[i], w)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %q: %w", tags[i], err))
		}
	}
	return errors.Join(errs...)
}

// finishSync releases a tag after its body returned and re-queues it on
// failure.
func (c *controller) finishSync(tag string, err error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	delete(c.running, tag)
	if err != nil && !errors.Is(err, ErrClosed) && !slices.Contains(c.pending, tag) {
		c.pending = append(c.pending, tag)
	}
}

// finishLater hands a still running body over to a tracked goroutine.
func (c *controller) finishLater(tag string, w *Completion) {
	if !c.track() {
		// closing: nothing will run the tag again
		go func() {
			<-w.Done()
			c.finishSync(tag, w.Err())
		}()
		return
	}
	go func() {
		defer c.inflight.Done()
		<-w.Done()
		c.finishSync(tag, w.Err())
	}()
}

func (c *controller) Sync(ctx context.Context, tag string) error {
	c.syncMu.Lock()
	fn, ok := c.syncTasks[tag]
	c.syncMu.Unlock()
	if !ok {
		c.log.Debug("sync tag has no task", Fields{"tag": tag})
		return nil
	}

	err := fn(ctx)
	if err != nil {
		c.log.Warn("sync task failed", Fields{"tag": tag, "err": err})
	}
	c.hooks.SyncCompleted(tag, err)
	return err
}

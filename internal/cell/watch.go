package cell

import (
	"context"
	"fmt"

	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"go.uber.org/zap"
)

// Subscribe registers fn to be called with the new value whenever another
// execution context changes this cell's key. The returned function removes
// the registration.
func (c *Cell[T]) Subscribe(fn func(T)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Watch subscribes to the backend's change stream and applies external
// changes to this cell until ctx is cancelled or the stream ends. It returns
// once the subscription is established; delivery continues in a goroutine.
// The returned channel is closed when delivery stops.
func (c *Cell[T]) Watch(ctx context.Context) (<-chan struct{}, error) {
	sub, err := c.backend.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", c.key, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-sub.Events():
				if !ok {
					return
				}
				c.Apply(ctx, change)
			case err, ok := <-sub.Errors():
				if !ok {
					return
				}
				c.logger.Warn("change stream error", zap.String("key", c.key), zap.Error(err))
			}
		}
	}()

	return done, nil
}

// Apply handles one external change. Changes for other keys are ignored;
// a removal resets the cell to its default; anything else is decoded with
// the same corruption handling as Load. Subscribers are notified for every
// change to this key.
func (c *Cell[T]) Apply(ctx context.Context, change kv.Change) {
	if change.Key != c.key {
		return
	}

	var value T
	var err error
	if change.Removed() {
		value = c.defaultValue()
	} else {
		value, err = c.decode(ctx, *change.Value)
	}

	c.mu.Lock()
	c.value = value
	c.loaded = true
	c.err = err
	c.mu.Unlock()

	c.notify(value)
}

func (c *Cell[T]) notify(value T) {
	c.subMu.Lock()
	fns := make([]func(T), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(c.copyOf(value))
	}
}

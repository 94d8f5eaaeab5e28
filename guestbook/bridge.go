package guestbook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type Bridge struct {
	coll Collection
}

func NewBridge(coll Collection) *Bridge {
	return &Bridge{coll: coll}
}

// Submit appends a wish. Blank input is rejected before the collection is
// touched.
func (b *Bridge) Submit(ctx context.Context, name, message string) error {
	name, message, err := Normalise(name, message)
	if err != nil {
		return err
	}
	wish, err := b.coll.Append(ctx, name, message)
	if err != nil {
		return fmt.Errorf("failed to append wish: %w", err)
	}
	slog.Debug("Stored wish", slog.String("id", wish.ID), slog.String("name", wish.Name))
	return nil
}

// Latest is a one-off read of the newest entries.
func (b *Bridge) Latest(ctx context.Context, limit int) ([]Wish, error) {
	return b.coll.Latest(ctx, ClampLimit(limit))
}

// Subscription delivers full snapshots of the newest wishes until it is
// closed or the underlying collection fails.
type Subscription struct {
	C <-chan []Wish

	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Close releases the live connection. Calling it more than once is safe and
// only the first call has any effect.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// SubscribeLatest emits a snapshot immediately and then again after every
// change to the collection. Snapshots are never diffs.
func (b *Bridge) SubscribeLatest(ctx context.Context, limit int) (*Subscription, error) {
	limit = ClampLimit(limit)
	ctx, cancel := context.WithCancel(ctx)

	changes, err := b.coll.Changes(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch collection: %w", err)
	}

	out := make(chan []Wish, 1)
	sub := &Subscription{C: out, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer close(out)

		emit := func() bool {
			wishes, err := b.coll.Latest(ctx, limit)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("Guestbook subscription stopped", slog.Any("error", err))
				}
				return false
			}
			// Only the newest snapshot matters to a slow consumer
			select {
			case <-out:
			default:
			}
			select {
			case out <- wishes:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					if ctx.Err() == nil {
						slog.Warn("Guestbook change feed closed")
					}
					return
				}
				if !emit() {
					return
				}
			}
		}
	}()

	return sub, nil
}

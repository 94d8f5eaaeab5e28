package db

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/marcus-crane/invitation/guestbook"
)

type MapStore struct {
	m     *sync.Mutex
	data  []guestbook.Wish
	clock clockwork.Clock
	feed  notifier
	fail  error
}

// NewMapStore keeps wishes in process memory. A nil clock means wall time.
func NewMapStore(clock clockwork.Clock) *MapStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MapStore{
		m:     new(sync.Mutex),
		data:  []guestbook.Wish{},
		clock: clock,
	}
}

func (ms *MapStore) Append(ctx context.Context, name, message string) (guestbook.Wish, error) {
	if err := ctx.Err(); err != nil {
		return guestbook.Wish{}, err
	}
	ms.m.Lock()
	if ms.fail != nil {
		err := ms.fail
		ms.m.Unlock()
		return guestbook.Wish{}, err
	}
	now := ms.clock.Now().UTC()
	w := guestbook.Wish{
		ID:        uuid.NewString(),
		Name:      name,
		Message:   message,
		CreatedAt: &now,
	}
	ms.data = append(ms.data, w)
	ms.m.Unlock()

	ms.feed.notify()
	return w, nil
}

// Latest walks backwards so entries written at the same instant still come
// out newest first.
func (ms *MapStore) Latest(ctx context.Context, limit int) ([]guestbook.Wish, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.m.Lock()
	defer ms.m.Unlock()
	if ms.fail != nil {
		return nil, ms.fail
	}
	if limit <= 0 {
		return []guestbook.Wish{}, nil
	}
	out := make([]guestbook.Wish, 0, min(limit, len(ms.data)))
	for i := len(ms.data) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ms.data[i])
	}
	return out, nil
}

func (ms *MapStore) Changes(ctx context.Context) (<-chan struct{}, error) {
	return ms.feed.subscribe(ctx), nil
}

// Fail makes every following call return err, or recovers when err is nil.
func (ms *MapStore) Fail(err error) {
	ms.m.Lock()
	defer ms.m.Unlock()
	ms.fail = err
}

// Watchers reports how many live change feeds are open.
func (ms *MapStore) Watchers() int {
	return ms.feed.watchers()
}

func (ms *MapStore) Close() error {
	return nil
}

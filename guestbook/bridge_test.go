package guestbook_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/invitation/db"
	"github.com/marcus-crane/invitation/guestbook"
)

func nextSnapshot(t *testing.T, sub *guestbook.Subscription) []guestbook.Wish {
	t.Helper()
	select {
	case wishes, ok := <-sub.C:
		require.True(t, ok, "subscription closed unexpectedly")
		return wishes
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a snapshot")
	}
	return nil
}

func TestNormalise(t *testing.T) {
	name, message, err := guestbook.Normalise("  Ana ", "\tcongrats!\n")
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)
	assert.Equal(t, "congrats!", message)

	for _, tc := range [][2]string{{"", "hi"}, {"Ana", ""}, {"   ", "hi"}, {"Ana", " \n\t "}} {
		_, _, err := guestbook.Normalise(tc[0], tc[1])
		assert.ErrorIs(t, err, guestbook.ErrEmptyField, "%q / %q", tc[0], tc[1])
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, guestbook.MaxWishes, guestbook.ClampLimit(0))
	assert.Equal(t, guestbook.MaxWishes, guestbook.ClampLimit(-3))
	assert.Equal(t, guestbook.MaxWishes, guestbook.ClampLimit(5000))
	assert.Equal(t, 20, guestbook.ClampLimit(20))
}

func TestBridge_SubmitRejectsBlankFields(t *testing.T) {
	ctx := context.Background()
	store := db.NewMapStore(nil)
	bridge := guestbook.NewBridge(store)

	require.NoError(t, bridge.Submit(ctx, "Ana", "hello"))

	sub, err := bridge.SubscribeLatest(ctx, 10)
	require.NoError(t, err)
	defer sub.Close()
	before := nextSnapshot(t, sub)

	for _, tc := range [][2]string{{"", "hi"}, {"Ana", "   "}, {" ", "\n"}} {
		err := bridge.Submit(ctx, tc[0], tc[1])
		assert.ErrorIs(t, err, guestbook.ErrEmptyField)
	}

	after, err := bridge.Latest(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, after, 1)

	select {
	case <-sub.C:
		t.Fatal("a rejected wish should never reach subscribers")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBridge_NewWishLandsAtHead(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	store := db.NewMapStore(fc)
	bridge := guestbook.NewBridge(store)

	require.NoError(t, bridge.Submit(ctx, "Ana", "first"))
	fc.Advance(time.Second)

	sub, err := bridge.SubscribeLatest(ctx, 10)
	require.NoError(t, err)
	defer sub.Close()
	assert.Len(t, nextSnapshot(t, sub), 1)

	require.NoError(t, bridge.Submit(ctx, " Budi ", " second "))
	snapshot := nextSnapshot(t, sub)
	require.Len(t, snapshot, 2)
	assert.Equal(t, "Budi", snapshot[0].Name)
	assert.Equal(t, "second", snapshot[0].Message)
	assert.Equal(t, "first", snapshot[1].Message)
	require.NotNil(t, snapshot[0].CreatedAt)
	assert.True(t, snapshot[0].CreatedAt.After(*snapshot[1].CreatedAt))
}

func TestBridge_SnapshotsNeverExceedCap(t *testing.T) {
	ctx := context.Background()
	store := db.NewMapStore(nil)
	bridge := guestbook.NewBridge(store)

	for i := 0; i < guestbook.MaxWishes+5; i++ {
		_, err := store.Append(ctx, "guest", fmt.Sprintf("wish %d", i))
		require.NoError(t, err)
	}

	sub, err := bridge.SubscribeLatest(ctx, 0)
	require.NoError(t, err)
	defer sub.Close()

	snapshot := nextSnapshot(t, sub)
	assert.Len(t, snapshot, guestbook.MaxWishes)
	assert.Equal(t, fmt.Sprintf("wish %d", guestbook.MaxWishes+4), snapshot[0].Message)

	small, err := bridge.SubscribeLatest(ctx, 3)
	require.NoError(t, err)
	defer small.Close()
	assert.Len(t, nextSnapshot(t, small), 3)
}

func TestSubscription_CloseReleasesOnce(t *testing.T) {
	store := db.NewMapStore(nil)
	bridge := guestbook.NewBridge(store)

	sub, err := bridge.SubscribeLatest(context.Background(), 10)
	require.NoError(t, err)
	nextSnapshot(t, sub)
	assert.Equal(t, 1, store.Watchers())

	sub.Close()
	sub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Eventually(t, func() bool {
		return store.Watchers() == 0
	}, time.Second, time.Millisecond)
}

// scriptedCollection lets a test decide when changes happen and when reads
// fail.
type scriptedCollection struct {
	changes chan struct{}

	m   sync.Mutex
	err error
}

func (s *scriptedCollection) Append(ctx context.Context, name, message string) (guestbook.Wish, error) {
	return guestbook.Wish{Name: name, Message: message}, nil
}

func (s *scriptedCollection) Latest(ctx context.Context, limit int) ([]guestbook.Wish, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return []guestbook.Wish{}, nil
}

func (s *scriptedCollection) Changes(ctx context.Context) (<-chan struct{}, error) {
	return s.changes, nil
}

func (s *scriptedCollection) fail(err error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.err = err
}

func TestSubscription_StopsOnReadFailure(t *testing.T) {
	coll := &scriptedCollection{changes: make(chan struct{}, 1)}
	bridge := guestbook.NewBridge(coll)

	sub, err := bridge.SubscribeLatest(context.Background(), 10)
	require.NoError(t, err)
	defer sub.Close()
	nextSnapshot(t, sub)

	coll.fail(errors.New("permission denied"))
	coll.changes <- struct{}{}

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok, "a failed read ends the subscription")
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestBridge_PropagatesCollectionErrors(t *testing.T) {
	store := db.NewMapStore(nil)
	store.Fail(errors.New("offline"))
	bridge := guestbook.NewBridge(store)

	_, err := bridge.Latest(context.Background(), 10)
	assert.Error(t, err)
	assert.ErrorIs(t, bridge.Submit(context.Background(), "Ana", "hi"), err)
}

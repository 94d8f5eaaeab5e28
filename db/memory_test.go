package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/marcus-crane/invitation/config"
)

func TestMapStore_LatestNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	s := NewMapStore(fc)

	for _, msg := range []string{"a", "b", "c"} {
		if _, err := s.Append(ctx, "guest", msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		fc.Advance(time.Second)
	}

	got, err := s.Latest(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var messages []string
	for _, w := range got {
		messages = append(messages, w.Message)
	}
	if diff := cmp.Diff([]string{"c", "b"}, messages); diff != "" {
		t.Error(diff)
	}

	empty, err := s.Latest(ctx, -1)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected an empty result, got %v, %v", empty, err)
	}
}

func TestMapStore_Fail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMapStore(nil)
	boom := errors.New("boom")

	s.Fail(boom)
	if _, err := s.Append(ctx, "a", "b"); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
	if _, err := s.Latest(ctx, 1); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}

	s.Fail(nil)
	if _, err := s.Append(ctx, "a", "b"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOpen(t *testing.T) {
	store, err := Open(config.DatabaseConfig{Driver: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*MapStore); !ok {
		t.Errorf("expected a map store, got %T", store)
	}

	if _, err := Open(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Error("expected an error for an unknown driver")
	}
	if _, err := Open(config.DatabaseConfig{Driver: "valkey"}); err == nil {
		t.Error("expected an error for valkey without an address")
	}
}

func TestOpen_SqliteFile(t *testing.T) {
	store, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: t.TempDir() + "/wishes.db"})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.Append(context.Background(), "Ana", "hi"); err != nil {
		t.Fatal(err)
	}
	got, err := store.Latest(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].CreatedAt == nil {
		t.Errorf("unexpected wishes %+v", got)
	}
}

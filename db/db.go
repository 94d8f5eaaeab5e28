package db

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/guestbook"
	"github.com/marcus-crane/invitation/migrations"
)

// Store is a guestbook collection that owns a live connection.
type Store interface {
	guestbook.Collection
	Close() error
}

// Open connects to whichever backend the configuration names and, for SQL
// backends, brings the schema up to date.
func Open(cfg config.DatabaseConfig) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "postgres", "mysql":
		if driver == "" {
			driver = "sqlite"
		}
		dialect, err := DialectFor(driver)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLStore(dialect, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
		}
		if err := store.ApplyMigrations(migrations.GetMigrations()); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		return store, nil
	case "valkey":
		return NewValkeyStore(cfg.ValkeyAddr, cfg.ValkeyPassword, cfg.ValkeyKey)
	case "memory":
		return NewMapStore(nil), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// notifier fans a single "something changed" signal out to every watcher.
// Signals coalesce: a watcher that has not consumed the previous signal
// will not queue another one.
type notifier struct {
	m    sync.Mutex
	subs map[chan struct{}]struct{}
}

func (n *notifier) subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	n.m.Lock()
	if n.subs == nil {
		n.subs = make(map[chan struct{}]struct{})
	}
	n.subs[ch] = struct{}{}
	n.m.Unlock()

	go func() {
		<-ctx.Done()
		n.m.Lock()
		delete(n.subs, ch)
		close(ch)
		n.m.Unlock()
	}()

	return ch
}

func (n *notifier) notify() {
	n.m.Lock()
	defer n.m.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (n *notifier) watchers() int {
	n.m.Lock()
	defer n.m.Unlock()
	return len(n.subs)
}

func fromMillis(ms int64) *time.Time {
	t := time.UnixMilli(ms).UTC()
	return &t
}

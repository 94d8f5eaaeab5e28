package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/marcus-crane/invitation/guestbook"
)

const defaultValkeyKey = "invitation:wishes"

// ValkeyStore keeps wishes in a sorted set scored by the server clock and
// announces every append on a pub/sub channel.
type ValkeyStore struct {
	client  valkey.Client
	key     string
	channel string
}

type valkeyWish struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Message     string `json:"message"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

func NewValkeyStore(addr, password, key string) (*ValkeyStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("valkey address must be provided")
	}
	if key == "" {
		key = defaultValkeyKey
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
		Password:    password,
	})
	if err != nil {
		return nil, err
	}
	return &ValkeyStore{client: client, key: key, channel: key + ":changed"}, nil
}

// serverTime asks valkey for its clock so timestamps do not depend on the
// host running this process.
func (v *ValkeyStore) serverTime(ctx context.Context) (time.Time, error) {
	parts, err := v.client.Do(ctx, v.client.B().Time().Build()).AsStrSlice()
	if err != nil {
		return time.Time{}, err
	}
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("unexpected TIME reply %v", parts)
	}
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	usec, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, usec*int64(time.Microsecond)).UTC(), nil
}

func (v *ValkeyStore) Append(ctx context.Context, name, message string) (guestbook.Wish, error) {
	now, err := v.serverTime(ctx)
	if err != nil {
		return guestbook.Wish{}, fmt.Errorf("failed to read server time: %w", err)
	}
	entry := valkeyWish{
		ID:          uuid.NewString(),
		Name:        name,
		Message:     message,
		CreatedAtMs: now.UnixMilli(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return guestbook.Wish{}, err
	}

	add := v.client.B().Zadd().Key(v.key).ScoreMember().ScoreMember(float64(entry.CreatedAtMs), string(payload)).Build()
	if err := v.client.Do(ctx, add).Error(); err != nil {
		return guestbook.Wish{}, fmt.Errorf("failed to store wish: %w", err)
	}

	pub := v.client.B().Publish().Channel(v.channel).Message(entry.ID).Build()
	if err := v.client.Do(ctx, pub).Error(); err != nil {
		// The write landed, subscribers will just catch up on the next change
		slog.Warn("Failed to announce wish", slog.String("id", entry.ID), slog.Any("error", err))
	}

	return guestbook.Wish{
		ID:        entry.ID,
		Name:      entry.Name,
		Message:   entry.Message,
		CreatedAt: fromMillis(entry.CreatedAtMs),
	}, nil
}

func (v *ValkeyStore) Latest(ctx context.Context, limit int) ([]guestbook.Wish, error) {
	if limit <= 0 {
		return []guestbook.Wish{}, nil
	}
	cmd := v.client.B().Zrange().Key(v.key).Min("0").Max(strconv.Itoa(limit - 1)).Rev().Build()
	members, err := v.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, err
	}
	wishes := make([]guestbook.Wish, 0, len(members))
	for _, m := range members {
		var entry valkeyWish
		if err := json.Unmarshal([]byte(m), &entry); err != nil {
			slog.Warn("Skipping unreadable wish", slog.Any("error", err))
			continue
		}
		wishes = append(wishes, guestbook.Wish{
			ID:        entry.ID,
			Name:      entry.Name,
			Message:   entry.Message,
			CreatedAt: fromMillis(entry.CreatedAtMs),
		})
	}
	return wishes, nil
}

// Changes returns once the subscription is live, so any append made after it
// returns is signalled. The channel closes when ctx ends or the connection
// drops.
func (v *ValkeyStore) Changes(ctx context.Context) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dc, release := v.client.Dedicate()

	var (
		m      sync.Mutex
		closed bool
		once   sync.Once
	)
	ch := make(chan struct{}, 1)
	ready := make(chan struct{})
	wait := dc.SetPubSubHooks(valkey.PubSubHooks{
		OnMessage: func(valkey.PubSubMessage) {
			m.Lock()
			defer m.Unlock()
			if closed {
				return
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		},
		OnSubscription: func(s valkey.PubSubSubscription) {
			if s.Kind == "subscribe" && s.Channel == v.channel {
				once.Do(func() { close(ready) })
			}
		},
	})

	fail := func(err error) (<-chan struct{}, error) {
		release()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", v.channel, err)
	}
	if err := dc.Do(ctx, dc.B().Subscribe().Channel(v.channel).Build()).Error(); err != nil {
		return fail(err)
	}
	// Publishes are only seen once the server has confirmed the subscription
	select {
	case <-ready:
	case err, ok := <-wait:
		if !ok || err == nil {
			err = valkey.ErrClosing
		}
		return fail(err)
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	go func() {
		select {
		case <-ctx.Done():
		case err := <-wait:
			if err != nil {
				slog.Error("Lost valkey subscription", slog.String("channel", v.channel), slog.Any("error", err))
			}
		}
		release()
		m.Lock()
		closed = true
		close(ch)
		m.Unlock()
	}()
	return ch, nil
}

func (v *ValkeyStore) Close() error {
	v.client.Close()
	return nil
}

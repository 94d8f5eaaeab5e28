// Package notify tells the couple about new guestbook entries.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gregdel/pushover"
	"github.com/jonboulle/clockwork"

	"github.com/marcus-crane/invitation/guestbook"
)

// Sender is satisfied by *pushover.Pushover.
type Sender interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
}

// Digest batches every wish written since the previous run into a single
// push notification.
type Digest struct {
	bridge    *guestbook.Bridge
	sender    Sender
	recipient *pushover.Recipient
	clock     clockwork.Clock

	m     sync.Mutex
	since time.Time
}

func NewDigest(bridge *guestbook.Bridge, token, recipient string, clock clockwork.Clock) *Digest {
	return newDigest(bridge, pushover.New(token), recipient, clock)
}

func newDigest(bridge *guestbook.Bridge, sender Sender, recipient string, clock clockwork.Clock) *Digest {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Digest{
		bridge:    bridge,
		sender:    sender,
		recipient: pushover.NewRecipient(recipient),
		clock:     clock,
		since:     clock.Now(),
	}
}

// Run sends one digest and reports how many wishes went into it.
func (d *Digest) Run(ctx context.Context) (int, error) {
	d.m.Lock()
	defer d.m.Unlock()

	wishes, err := d.bridge.Latest(ctx, guestbook.MaxWishes)
	if err != nil {
		return 0, fmt.Errorf("failed to read wishes for digest: %w", err)
	}

	var fresh []guestbook.Wish
	newest := d.since
	for _, w := range wishes {
		if w.CreatedAt == nil || !w.CreatedAt.After(d.since) {
			continue
		}
		fresh = append(fresh, w)
		if w.CreatedAt.After(newest) {
			newest = *w.CreatedAt
		}
	}
	if len(fresh) == 0 {
		slog.Debug("No new wishes for digest")
		return 0, nil
	}

	message := &pushover.Message{
		Title:     fmt.Sprintf("%d new wishes in the guestbook", len(fresh)),
		Message:   summarise(fresh),
		Timestamp: d.clock.Now().Unix(),
	}
	if len(fresh) == 1 {
		message.Title = "A new wish in the guestbook"
	}
	if _, err := d.sender.SendMessage(message, d.recipient); err != nil {
		return 0, fmt.Errorf("failed to send digest: %w", err)
	}

	d.since = newest
	slog.With(slog.Int("wishes", len(fresh))).Info("Sent wish digest")
	return len(fresh), nil
}

// summarise keeps the message under the pushover limit of 1024 characters.
func summarise(wishes []guestbook.Wish) string {
	const limit = 1024
	var b strings.Builder
	for i, w := range wishes {
		line := fmt.Sprintf("%s: %s\n", w.Name, w.Message)
		if b.Len()+len(line) > limit-32 {
			fmt.Fprintf(&b, "...and %d more", len(wishes)-i)
			break
		}
		b.WriteString(line)
	}
	return strings.TrimRight(b.String(), "\n")
}

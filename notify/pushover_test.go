package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gregdel/pushover"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/invitation/db"
	"github.com/marcus-crane/invitation/guestbook"
)

type fakeSender struct {
	messages []*pushover.Message
	err      error
}

func (f *fakeSender) SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.messages = append(f.messages, message)
	return &pushover.Response{Status: 1}, nil
}

func TestDigest_OnlyNewWishes(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	store := db.NewMapStore(fc)
	bridge := guestbook.NewBridge(store)

	require.NoError(t, bridge.Submit(ctx, "Early", "before the digest existed"))
	fc.Advance(time.Second)

	sender := &fakeSender{}
	digest := newDigest(bridge, sender, "recipient", fc)

	sent, err := digest.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, sender.messages)

	fc.Advance(time.Second)
	require.NoError(t, bridge.Submit(ctx, "Ana", "congrats"))
	fc.Advance(time.Second)
	require.NoError(t, bridge.Submit(ctx, "Budi", "selamat"))

	sent, err = digest.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, sender.messages, 1)
	assert.Equal(t, "2 new wishes in the guestbook", sender.messages[0].Title)
	assert.Contains(t, sender.messages[0].Message, "Ana: congrats")
	assert.NotContains(t, sender.messages[0].Message, "Early")

	sent, err = digest.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestDigest_FailedSendIsRetried(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	bridge := guestbook.NewBridge(db.NewMapStore(fc))
	sender := &fakeSender{err: assert.AnError}
	digest := newDigest(bridge, sender, "recipient", fc)

	fc.Advance(time.Second)
	require.NoError(t, bridge.Submit(ctx, "Ana", "congrats"))

	_, err := digest.Run(ctx)
	assert.ErrorIs(t, err, assert.AnError)

	sender.err = nil
	sent, err := digest.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, "A new wish in the guestbook", sender.messages[0].Title)
}

func TestSummarise_StaysUnderLimit(t *testing.T) {
	var wishes []guestbook.Wish
	for i := 0; i < 100; i++ {
		wishes = append(wishes, guestbook.Wish{Name: "guest", Message: strings.Repeat("x", 40)})
	}
	summary := summarise(wishes)
	assert.LessOrEqual(t, len(summary), 1024)
	assert.Contains(t, summary, "more")
}

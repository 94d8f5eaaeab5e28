package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/events"
	"github.com/marcus-crane/invitation/guestbook"
	"github.com/marcus-crane/invitation/notify"
	"github.com/marcus-crane/invitation/playback"
	"github.com/marcus-crane/invitation/shared"
)

func sendDigest(digest *notify.Digest) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sent, err := digest.Run(ctx)
	if err != nil {
		slog.With(slog.Any("error", err)).Error("Failed to send wish digest")
		return
	}
	if sent > 0 {
		slog.With(slog.Int("wishes", sent)).Info("Sent wish digest")
	}
}

func SetupInBackground(cfg config.Config, ps *playback.PlaybackSystem, bridge *guestbook.Bridge) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(ps.Reap, cfg.SessionTTL()),
	)
	if err != nil {
		return nil, err
	}

	if cfg.PushoverEnabled() {
		hours := cfg.Pushover.DigestHours
		if hours <= 0 {
			hours = 24
		}
		digest := notify.NewDigest(bridge, cfg.Pushover.Token, cfg.Pushover.Recipient, clockwork.NewRealClock())
		_, err = s.NewJob(
			gocron.DurationJob(time.Duration(hours)*time.Hour),
			gocron.NewTask(sendDigest, digest),
		)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// StartWishFeed mirrors the newest wishes onto the public wishes stream
// until ctx ends.
func StartWishFeed(ctx context.Context, bridge *guestbook.Bridge, limit int) error {
	sub, err := bridge.SubscribeLatest(ctx, limit)
	if err != nil {
		return err
	}
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case wishes, ok := <-sub.C:
				if !ok {
					return
				}
				if err := events.PublishJSON(shared.STREAM_WISHES, wishes); err != nil {
					slog.With(slog.Any("error", err)).Error("Failed to publish wishes")
				}
			}
		}
	}()
	return nil
}

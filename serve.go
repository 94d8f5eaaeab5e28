package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/db"
	"github.com/marcus-crane/invitation/events"
	"github.com/marcus-crane/invitation/guestbook"
	"github.com/marcus-crane/invitation/playback"
	"github.com/marcus-crane/invitation/scenes"
)

// progressThrottle caps how often progress-only updates are pushed to a
// viewer. Index and flag changes always go out immediately.
const progressThrottle = 250 * time.Millisecond

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the invitation (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides INVITATION_ADDR)")
	return cmd
}

func playbackTimings(t config.PlaybackTimings) playback.Timings {
	return playback.Timings{
		Dwell:            t.Dwell(),
		ProgressInterval: t.ProgressInterval(),
		Debounce:         t.Debounce(),
		LongPress:        t.LongPress(),
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// audioPath resolves the configured track against the assets directory.
// Remote tracks are streamed by the browser and not probed here.
func audioPath(assetsDir, track string) string {
	if track == "" || strings.HasPrefix(track, "http://") || strings.HasPrefix(track, "https://") {
		return ""
	}
	return filepath.Join(assetsDir, strings.TrimLeft(track, "/"))
}

func runServe(cmdCtx context.Context, cc *commandContext, addr string) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	content, err := cc.ensureContent()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Invitation.Addr = addr
	}

	if err := os.MkdirAll(cfg.Invitation.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.Invitation.DataDir, "invitation.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another invitation server is already running from %s", cfg.Invitation.DataDir)
	}
	defer lock.Unlock()

	store, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open guestbook: %w", err)
	}
	defer store.Close()
	bridge := guestbook.NewBridge(store)

	base := cfg.Invitation.BasePath
	photos := scenes.PreparePhotos(content.Photos, cfg.Invitation.AssetsDir, base)

	events.Init()

	secret := cfg.Invitation.SessionSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		slog.Warn("INVITATION_SESSION_SECRET is not set, session tokens will not survive a restart")
	}

	system, err := playback.NewPlaybackSystem(playback.SystemOptions{
		Timings: playbackTimings(content.Playback),
		Secret:  secret,
		Scenes: func(clock clockwork.Clock) ([]scenes.Scene, error) {
			return scenes.Build(content, scenes.Deps{
				Clock:    clock,
				Bridge:   bridge,
				BasePath: base,
				Photos:   photos,
			})
		},
		AudioPath: audioPath(cfg.Invitation.AssetsDir, content.Audio.Track),
		Throttle:  progressThrottle,
	})
	if err != nil {
		return err
	}
	defer system.CloseAll()

	if err := StartWishFeed(ctx, bridge, content.Playback.WishLimit); err != nil {
		slog.With(slog.Any("error", err)).Warn("Public wishes stream is unavailable")
	}

	if cfg.Invitation.BackgroundJobsEnabled {
		scheduler, err := SetupInBackground(cfg, system, bridge)
		if err != nil {
			return fmt.Errorf("schedule background jobs: %w", err)
		}
		scheduler.Start()
		defer scheduler.Shutdown()
		slog.Info("Background jobs have started up in the background.")
	} else {
		slog.Info("Background jobs are disabled.")
	}

	handler, err := RegisterRoutes(http.NewServeMux(), &App{
		Config:  cfg,
		Content: content,
		System:  system,
		Bridge:  bridge,
		Assets:  assetsFS(cfg.Invitation.AssetsDir),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Invitation.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("Invitation is running", slog.String("addr", cfg.Invitation.Addr), slog.String("base_path", base))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	// Event streams never end on their own, so close them before waiting
	// on in-flight requests.
	system.CloseAll()
	events.Server.Close()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

package main

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/skip2/go-qrcode"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/events"
	"github.com/marcus-crane/invitation/guestbook"
	"github.com/marcus-crane/invitation/playback"
	"github.com/marcus-crane/invitation/scenes"
	"github.com/marcus-crane/invitation/shared"
)

//go:embed templates/*.html
var templateFS embed.FS

const tokenHeader = "X-Session-Token"

// App is everything the HTTP surface needs.
type App struct {
	Config  config.Config
	Content config.Content
	System  *playback.PlaybackSystem
	Bridge  *guestbook.Bridge
	Assets  fs.FS
}

type pageData struct {
	Title    string
	BasePath string
	AudioURL string
	Couple   config.Couple
	Petals   []scenes.Petal
}

type sessionResponse struct {
	ID       string                     `json:"id"`
	Token    string                     `json:"token,omitempty"`
	Sequence []playback.SceneDescriptor `json:"sequence"`
	State    playback.State             `json:"state"`
}

type socketReply struct {
	State *playback.State `json:"state,omitempty"`
	Error string          `json:"error,omitempty"`
}

func renderJSONMessage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	res := map[string]string{"message": message}
	json.NewEncoder(w).Encode(res)
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderError(w http.ResponseWriter, err error) {
	renderJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, playback.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, playback.ErrBadToken):
		return http.StatusForbidden
	case errors.Is(err, playback.ErrInvalidInput), errors.Is(err, playback.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, playback.ErrClosed):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func sessionToken(r *http.Request) string {
	if token := r.Header.Get(tokenHeader); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func RegisterRoutes(mux *http.ServeMux, app *App) (http.Handler, error) {
	base := app.Config.Invitation.BasePath
	origins := app.Config.Origins()

	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	data := pageData{
		Title:    fmt.Sprintf("%s & %s", app.Content.Couple.First, app.Content.Couple.Second),
		BasePath: base,
		AudioURL: config.AssetURL(base, app.Content.Audio.Track),
		Couple:   app.Content.Couple,
		Petals:   scenes.Petals(24),
	}

	mux.HandleFunc("GET "+base+"/{$}", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := page.Execute(&buf, data); err != nil {
			slog.With(slog.Any("error", err)).Error("Failed to render page")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	})

	mux.HandleFunc("GET "+base+"/static/{path...}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("path")
		if app.Assets == nil || !fs.ValidPath(name) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		asset, err := fs.ReadFile(app.Assets, name)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		etag := fmt.Sprintf("\"%x\"", xxhash.Sum64(asset))
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=86400")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", mimetype.Detect(asset).String())
		http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(asset))
	})

	mux.HandleFunc("GET "+base+"/qr/{file}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := strings.CutSuffix(r.PathValue("file"), ".png")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		account, ok := app.Content.Account(id)
		if !ok || account.Payload == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		png, err := qrcode.Encode(account.Payload, qrcode.Medium, 320)
		if err != nil {
			slog.With(slog.String("account", id), slog.Any("error", err)).Error("Failed to encode QR code")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write(png)
	})

	mux.HandleFunc("GET "+base+"/api", func(w http.ResponseWriter, r *http.Request) {
		renderJSONMessage(w, "This is the base of the invitation API")
	})

	mux.HandleFunc("POST "+base+"/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		session, err := app.System.Create(r.Context())
		if err != nil {
			slog.With(slog.Any("error", err)).Error("Failed to create playback session")
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusCreated, sessionResponse{
			ID:       session.ID,
			Token:    session.Token,
			Sequence: session.Controller.Sequence(),
			State:    session.Controller.State(),
		})
	})

	mux.HandleFunc("GET "+base+"/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusOK, app.System.Counters())
	})

	mux.HandleFunc("GET "+base+"/api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		session, err := app.System.Get(r.PathValue("id"), sessionToken(r))
		if err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, sessionResponse{
			ID:       session.ID,
			Sequence: session.Controller.Sequence(),
			State:    session.Controller.State(),
		})
	})

	mux.HandleFunc("POST "+base+"/api/sessions/{id}/input", func(w http.ResponseWriter, r *http.Request) {
		session, err := app.System.Get(r.PathValue("id"), sessionToken(r))
		if err != nil {
			renderError(w, err)
			return
		}
		var in playback.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			renderError(w, fmt.Errorf("%w: %v", playback.ErrInvalidInput, err))
			return
		}
		state, err := session.Controller.Dispatch(r.Context(), in)
		if err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, state)
	})

	mux.HandleFunc("DELETE "+base+"/api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		session, err := app.System.Get(r.PathValue("id"), sessionToken(r))
		if err != nil {
			renderError(w, err)
			return
		}
		if err := app.System.Close(session.ID); err != nil {
			renderError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET "+base+"/api/wishes", func(w http.ResponseWriter, r *http.Request) {
		limit := app.Content.Playback.WishLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				renderJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a number"})
				return
			}
			limit = parsed
		}
		wishes, err := app.Bridge.Latest(r.Context(), limit)
		if err != nil {
			slog.With(slog.Any("error", err)).Error("Failed to read wishes")
			renderJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "the guestbook is unavailable"})
			return
		}
		renderJSON(w, http.StatusOK, wishes)
	})

	mux.HandleFunc("GET "+base+"/events", func(w http.ResponseWriter, r *http.Request) {
		stream := r.URL.Query().Get("stream")
		if stream != shared.STREAM_WISHES {
			if _, err := app.System.Get(stream, sessionToken(r)); err != nil {
				renderError(w, err)
				return
			}
		}
		events.Server.ServeHTTP(w, r)
	})

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
				return true
			}
			return slices.Contains(origins, origin)
		},
	}

	mux.HandleFunc("GET "+base+"/ws/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		session, err := app.System.Get(r.PathValue("id"), sessionToken(r))
		if err != nil {
			renderError(w, err)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.With(slog.Any("error", err)).Warn("Websocket upgrade failed")
			return
		}
		defer conn.Close()
		serveInputSocket(conn, session)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", tokenHeader},
	})

	return c.Handler(mux), nil
}

// serveInputSocket feeds every message on the socket into the session and
// answers with the resulting state, until either side goes away.
func serveInputSocket(conn *websocket.Conn, session *playback.Session) {
	logger := slog.With(slog.String("session", session.ID))
	for {
		var in playback.Input
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.With(slog.Any("error", err)).Warn("Input socket closed unexpectedly")
			}
			return
		}
		state, err := session.Controller.Dispatch(context.Background(), in)
		reply := socketReply{State: &state}
		if err != nil {
			reply = socketReply{Error: err.Error()}
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
		if errors.Is(err, playback.ErrClosed) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return
		}
	}
}

// assetsFS is the assets directory, or nil when there is none.
func assetsFS(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		slog.With(slog.String("dir", dir)).Warn("Assets directory is missing, static files will not be served")
		return nil
	}
	return os.DirFS(dir)
}

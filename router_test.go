package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/db"
	"github.com/marcus-crane/invitation/events"
	"github.com/marcus-crane/invitation/guestbook"
	"github.com/marcus-crane/invitation/playback"
	"github.com/marcus-crane/invitation/scenes"
)

const qrisPayload = "00020101021126570011ID.DANA.WWW0118936009153"

type testApp struct {
	*App
	handler http.Handler
	store   *db.MapStore
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	events.Init()

	cfg := config.Default()
	cfg.Invitation.BasePath = "/wedding"

	content := config.DefaultContent()
	content.Couple = config.Couple{First: "Rina", Second: "Dimas"}
	content.Audio.Track = "audio/theme.mp3"
	content.Accounts = []config.Account{{ID: "bca", Bank: "BCA", Holder: "Rina", Number: "123", Payload: qrisPayload}}

	store := db.NewMapStore(nil)
	bridge := guestbook.NewBridge(store)
	clock := clockwork.NewFakeClock()

	system, err := playback.NewPlaybackSystem(playback.SystemOptions{
		Clock:   clock,
		Timings: playbackTimings(content.Playback),
		Secret:  "test-secret",
		Scenes: func(clock clockwork.Clock) ([]scenes.Scene, error) {
			return scenes.Build(content, scenes.Deps{Clock: clock, Bridge: bridge, BasePath: cfg.Invitation.BasePath})
		},
	})
	require.NoError(t, err)
	t.Cleanup(system.CloseAll)

	app := &App{
		Config:  cfg,
		Content: content,
		System:  system,
		Bridge:  bridge,
		Assets: fstest.MapFS{
			"hello.txt": &fstest.MapFile{Data: []byte("hello guests")},
		},
	}
	handler, err := RegisterRoutes(http.NewServeMux(), app)
	require.NoError(t, err)
	return &testApp{App: app, handler: handler, store: store}
}

func (a *testApp) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func (a *testApp) createSession(t *testing.T) sessionResponse {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/wedding/api/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res sessionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res
}

func TestPage_RendersWithBasePath(t *testing.T) {
	app := setupTestApp(t)

	rr := app.do(t, http.MethodGet, "/wedding/", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	doc, err := goquery.NewDocumentFromReader(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, "Rina & Dimas", doc.Find("title").Text())
	assert.Equal(t, 24, doc.Find(".petal").Length())
	assert.Equal(t, "/wedding", doc.Find("body").AttrOr("data-base", ""))
	assert.Equal(t, "/wedding/static/favicon.png", doc.Find("link[rel=icon]").AttrOr("href", ""))
	assert.Equal(t, "/wedding/static/audio/theme.mp3", doc.Find("audio#music").AttrOr("src", ""))
}

func TestPage_OutsideBasePathIsNotFound(t *testing.T) {
	app := setupTestApp(t)

	rr := app.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_Base(t *testing.T) {
	app := setupTestApp(t)

	rr := app.do(t, http.MethodGet, "/wedding/api", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, "This is the base of the invitation API", res["message"])
}

func TestSessions_Lifecycle(t *testing.T) {
	app := setupTestApp(t)

	created := app.createSession(t)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Token)
	require.Len(t, created.Sequence, 6)
	assert.Equal(t, "envelope", created.Sequence[0].Name)
	assert.Equal(t, 0, created.State.Index)
	assert.True(t, created.State.IsPlaying)
	assert.False(t, created.State.HasOpened)

	rr := app.do(t, http.MethodGet, "/wedding/api/sessions/"+created.ID, created.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got sessionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)
	assert.Empty(t, got.Token, "the token is only handed out once")

	rr = app.do(t, http.MethodGet, "/wedding/api/sessions/"+created.ID+"?token="+created.Token, "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = app.do(t, http.MethodGet, "/wedding/api/sessions", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var counters playback.Counters
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&counters))
	assert.Equal(t, 1, counters.ActiveSessions)

	rr = app.do(t, http.MethodDelete, "/wedding/api/sessions/"+created.ID, created.Token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = app.do(t, http.MethodGet, "/wedding/api/sessions/"+created.ID, created.Token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, events.Server.StreamExists(created.ID))
}

func TestSessions_RejectBadTokens(t *testing.T) {
	app := setupTestApp(t)
	created := app.createSession(t)

	rr := app.do(t, http.MethodGet, "/wedding/api/sessions/"+created.ID, "nope", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = app.do(t, http.MethodPost, "/wedding/api/sessions/"+created.ID+"/input", "", playback.Input{Kind: playback.InputMute})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = app.do(t, http.MethodDelete, "/wedding/api/sessions/"+created.ID, "", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.True(t, app.System.Exists(created.ID), "a rejected delete leaves the session alone")

	rr = app.do(t, http.MethodGet, "/wedding/events?stream="+created.ID, "", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = app.do(t, http.MethodGet, "/wedding/api/sessions/missing", created.Token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSessions_Input(t *testing.T) {
	app := setupTestApp(t)
	created := app.createSession(t)
	path := "/wedding/api/sessions/" + created.ID + "/input"

	rr := app.do(t, http.MethodPost, path, created.Token, playback.Input{Kind: playback.InputJump, Target: 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var state playback.State
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&state))
	assert.Equal(t, 2, state.Index)
	assert.Equal(t, "schedule", state.Scene)
	assert.True(t, state.HasOpened)

	rr = app.do(t, http.MethodPost, path, created.Token, playback.Input{Kind: playback.InputJump, Target: 99})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = app.do(t, http.MethodPost, path, created.Token, playback.Input{Kind: playback.InputWish, Name: "Ana", Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "only the wishes scene takes wishes")

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{not json"))
	req.Header.Set(tokenHeader, created.Token)
	res := httptest.NewRecorder()
	app.handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	rr = app.do(t, http.MethodPost, path, created.Token, playback.Input{Kind: playback.InputMute})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&state))
	assert.Equal(t, 2, state.Index, "mute never moves the index")
	assert.True(t, state.IsMuted)
}

func TestWishes_API(t *testing.T) {
	app := setupTestApp(t)
	ctx := context.Background()

	require.NoError(t, app.Bridge.Submit(ctx, "Ana", "first"))
	require.NoError(t, app.Bridge.Submit(ctx, "Budi", "second"))

	rr := app.do(t, http.MethodGet, "/wedding/api/wishes?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var wishes []guestbook.Wish
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&wishes))
	require.Len(t, wishes, 1)
	assert.Equal(t, "second", wishes[0].Message)

	rr = app.do(t, http.MethodGet, "/wedding/api/wishes?limit=ten", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	app.store.Fail(errors.New("offline"))
	rr = app.do(t, http.MethodGet, "/wedding/api/wishes", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestQRCode(t *testing.T) {
	app := setupTestApp(t)

	rr := app.do(t, http.MethodGet, "/wedding/qr/bca.png", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))

	rr = app.do(t, http.MethodGet, "/wedding/qr/mandiri.png", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = app.do(t, http.MethodGet, "/wedding/qr/bca.jpg", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatic_ETag(t *testing.T) {
	app := setupTestApp(t)

	rr := app.do(t, http.MethodGet, "/wedding/static/hello.txt", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello guests", rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/wedding/static/hello.txt", nil)
	req.Header.Set("If-None-Match", etag)
	res := httptest.NewRecorder()
	app.handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusNotModified, res.Code)
	assert.Empty(t, res.Body.String())

	rr = app.do(t, http.MethodGet, "/wedding/static/missing.jpg", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInputSocket(t *testing.T) {
	app := setupTestApp(t)
	created := app.createSession(t)

	srv := httptest.NewServer(app.handler)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/wedding/ws/sessions/" + created.ID

	_, res, err := websocket.DefaultDialer.Dial(base+"?token=wrong", nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+created.Token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(playback.Input{Kind: playback.InputJump, Target: 1}))
	var reply socketReply
	require.NoError(t, conn.ReadJSON(&reply))
	require.NotNil(t, reply.State)
	assert.Empty(t, reply.Error)
	assert.Equal(t, 1, reply.State.Index)

	require.NoError(t, conn.WriteJSON(playback.Input{Kind: playback.InputJump, Target: -1}))
	reply = socketReply{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Nil(t, reply.State)
	assert.NotEmpty(t, reply.Error)
}

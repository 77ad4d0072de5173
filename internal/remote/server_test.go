// ABOUTME: Tests for the remote control API
// ABOUTME: Exercises REST routes and the websocket push feed against a fake player
package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Resonate-Protocol/resonate-radio/internal/app"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"github.com/Resonate-Protocol/resonate-radio/pkg/streaming"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePlayer struct {
	mu        sync.Mutex
	commands  []app.Command
	sendErr   error
	snapshot  app.Snapshot
	snapshots chan app.Snapshot
	metaFn    streaming.MetadataFunc
	metaReady chan struct{}
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		snapshot:  app.Snapshot{State: streaming.Active, URL: "http://radio.example/live", Gain: 0.5, Metadata: metadata.Map{"TITLE": "Song"}},
		snapshots: make(chan app.Snapshot, 1),
		metaReady: make(chan struct{}),
	}
}

func (p *fakePlayer) Send(_ context.Context, cmd app.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.commands = append(p.commands, cmd)
	return nil
}

func (p *fakePlayer) Snapshot() app.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

func (p *fakePlayer) Subscribe() (<-chan app.Snapshot, func()) {
	return p.snapshots, func() {}
}

func (p *fakePlayer) OnMetadata(fn streaming.MetadataFunc) *streaming.Connection {
	p.mu.Lock()
	p.metaFn = fn
	p.mu.Unlock()
	close(p.metaReady)
	return &streaming.Connection{}
}

func (p *fakePlayer) lastCommand() app.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.commands) == 0 {
		return app.Command{Kind: -1}
	}
	return p.commands[len(p.commands)-1]
}

func request(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	s := New(Config{Player: newFakePlayer()})

	rec := request(t, s.Handler(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"state": "playing",
		"url": "http://radio.example/live",
		"gain": 0.5,
		"muted": false,
		"buffered": 0,
		"starving": false,
		"metadata": {"TITLE": "Song"},
		"peak": 0
	}`, rec.Body.String())
}

func TestCommandRoutes(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		expected app.Command
	}{
		{"start", http.MethodPost, "/api/start", `{"url":"http://radio.example/b"}`, app.Start("http://radio.example/b")},
		{"stop", http.MethodPost, "/api/stop", "", app.Stop()},
		{"pause toggle", http.MethodPost, "/api/pause", "", app.Pause(-1)},
		{"pause", http.MethodPost, "/api/pause", `{"pause":1}`, app.Pause(1)},
		{"resume", http.MethodPost, "/api/pause", `{"pause":0}`, app.Pause(0)},
		{"gain", http.MethodPut, "/api/gain", `{"gain":0.25}`, app.SetGain(0.25)},
		{"mute", http.MethodPut, "/api/mute", `{"muted":true}`, app.SetMuted(true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := newFakePlayer()
			s := New(Config{Player: player})

			rec := request(t, s.Handler(), tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
			assert.Equal(t, tt.expected, player.lastCommand())
		})
	}
}

func TestGainValidation(t *testing.T) {
	player := newFakePlayer()
	s := New(Config{Player: player})

	for _, body := range []string{`{"gain":1.5}`, `{"gain":-0.1}`, `{}`, `not json`} {
		rec := request(t, s.Handler(), http.MethodPut, "/api/gain", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, player.commands)
}

func TestStoppedPlayer(t *testing.T) {
	player := newFakePlayer()
	player.sendErr = app.ErrStopped
	s := New(Config{Player: player})

	rec := request(t, s.Handler(), http.MethodPost, "/api/stop", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("resonate_radio_stream_retries_total 0\n"))
	})
	s := New(Config{Player: newFakePlayer(), Metrics: metrics})

	rec := request(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resonate_radio_stream_retries_total")

	s = New(Config{Player: newFakePlayer()})
	rec = request(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocketPushes(t *testing.T) {
	player := newFakePlayer()
	s := New(Config{Player: player})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, "playing", msg.Data["state"])

	player.snapshots <- app.Snapshot{State: streaming.PausedWithURL, URL: "http://radio.example/live"}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, "paused", msg.Data["state"])

	<-player.metaReady
	player.mu.Lock()
	fn := player.metaFn
	player.mu.Unlock()
	fn(metadata.Map{"TITLE": "Next Song"})

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "metadata", msg.Type)
	assert.Equal(t, "Next Song", msg.Data["TITLE"])

	require.NoError(t, s.Shutdown(context.Background()))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "server closes clients on shutdown")
}

func TestStartAndShutdown(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Player: newFakePlayer()})
	require.NoError(t, s.Start())
	require.NotZero(t, s.Port())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/holdings/internal/domain"
)

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func publish(t *testing.T, bus *chanBus, ev domain.LedgerEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), domain.LedgerChannel, data))
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func startHub(t *testing.T) (*chanBus, *httptest.Server) {
	t.Helper()
	bus := &chanBus{ch: make(chan []byte, 8)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "Serve"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return bus, srv
}

func TestHubStreamsLedgerEvents(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "")
	defer conn.Close()

	var hello struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	readJSON(t, conn, &hello)
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, "serve", hello.Payload["mode"])

	publish(t, bus, domain.LedgerEvent{Event: domain.EventEntryRecorded, PositionID: "pos-1", Quantity: "3"})

	var ev domain.LedgerEvent
	readJSON(t, conn, &ev)
	assert.Equal(t, domain.EventEntryRecorded, ev.Event)
	assert.Equal(t, "pos-1", ev.PositionID)
	assert.Equal(t, "3", ev.Quantity)
}

func TestHubFiltersByPosition(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "?position=pos-2")
	defer conn.Close()

	var hello map[string]any
	readJSON(t, conn, &hello)

	publish(t, bus, domain.LedgerEvent{Event: domain.EventEntryRecorded, PositionID: "pos-1"})
	publish(t, bus, domain.LedgerEvent{Event: domain.EventEntryDeleted, PositionID: "pos-2"})

	var ev domain.LedgerEvent
	readJSON(t, conn, &ev)
	assert.Equal(t, "pos-2", ev.PositionID)
	assert.Equal(t, domain.EventEntryDeleted, ev.Event)
}

func TestClientApplyFilter(t *testing.T) {
	c := &client{positions: map[string]bool{}}
	assert.True(t, c.watches("any"))

	c.applyFilter(filterMsg{Action: "subscribe", Positions: []string{"a", "b"}})
	assert.True(t, c.watches("a"))
	assert.False(t, c.watches("c"))

	c.applyFilter(filterMsg{Action: "unsubscribe", Positions: []string{"a"}})
	assert.False(t, c.watches("a"))
	assert.True(t, c.watches("b"))

	c.applyFilter(filterMsg{Action: "reset"})
	assert.True(t, c.watches("c"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(r), "no origin header")

	r.Header.Set("Origin", "https://APP.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))
}

func TestHubClosesConnectionsAfterShutdown(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 8)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "serve"})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- hub.Run(ctx) }()

	handled := make(chan struct{}, 4)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWS(w, r)
		handled <- struct{}{}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	live := dial(t, srv, "")
	defer live.Close()
	var hello map[string]any
	readJSON(t, live, &hello)
	<-handled

	cancel()
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	late := dial(t, srv, "")
	defer late.Close()
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade after shutdown blocked")
	}
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := late.ReadMessage()
	assert.Error(t, err, "late connection is closed")

	// The live client's send channel was closed on shutdown, so its stream ends.
	require.NoError(t, live.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = live.ReadMessage()
	assert.Error(t, err)
}

package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/volumectl/internal/volume"
	wsHub "github.com/obsidianstack/volumectl/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

// fakeSource serves whatever table was last stored.
type fakeSource struct {
	tbl atomic.Pointer[volume.Table]
}

func newSource(m map[volume.Identifier]float32) *fakeSource {
	s := &fakeSource{}
	s.set(m)
	return s
}

func (s *fakeSource) set(m map[volume.Identifier]float32) { s.tbl.Store(volume.TableFrom(m)) }

func (s *fakeSource) Snapshot() *volume.Table { return s.tbl.Load() }

// startHub starts a test HTTP server with the hub as its handler and runs
// the hub loop until the test ends or cancel is called.
func startHub(t *testing.T, src wsHub.Source, interval time.Duration) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(src, interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads and decodes one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

// waitCount polls hub.Count until it equals want or the deadline passes.
func waitCount(t *testing.T, hub *wsHub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Count: got %d, want %d", hub.Count(), want)
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateTable(t *testing.T) {
	src := newSource(map[volume.Identifier]float32{"base:sounds/ui/click.ogg": 0.5})
	wsURL, _, _ := startHub(t, src, time.Hour)

	conn := dial(t, wsURL)
	m := readMessage(t, conn)

	if m.Event != "volumes" {
		t.Errorf("event: got %q, want volumes", m.Event)
	}
	if got := m.Data.Volumes["base:sounds/ui/click.ogg"]; got != 0.5 {
		t.Errorf("volume: got %v, want 0.5", got)
	}
	if m.Data.GeneratedAt == "" {
		t.Error("generated_at: missing")
	}
}

func TestHub_EmptyTable_EmptyObject(t *testing.T) {
	wsURL, _, _ := startHub(t, newSource(nil), time.Hour)
	conn := dial(t, wsURL)

	m := readMessage(t, conn)
	if m.Data.Volumes == nil || len(m.Data.Volumes) != 0 {
		t.Errorf("volumes: got %#v, want empty object", m.Data.Volumes)
	}
}

func TestHub_Notify_Broadcasts(t *testing.T) {
	src := newSource(nil)
	// An hour-long interval leaves Notify as the only trigger.
	wsURL, hub, _ := startHub(t, src, time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate table
	waitCount(t, hub, 1)

	src.set(map[volume.Identifier]float32{"mymod:music/theme.ogg": 0.3})
	hub.Notify()

	m := readMessage(t, conn)
	if got := m.Data.Volumes["mymod:music/theme.ogg"]; got != 0.3 {
		t.Errorf("volume after notify: got %v, want 0.3", got)
	}
}

func TestHub_Notify_NeverBlocks(t *testing.T) {
	hub := wsHub.New(newSource(nil), time.Hour)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Notify()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked without a running hub")
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	src := newSource(nil)
	wsURL, _, _ := startHub(t, src, testInterval)

	conn := dial(t, wsURL)
	readMessage(t, conn)

	src.set(map[volume.Identifier]float32{"base:sounds/late.ogg": 0.1})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m := readMessage(t, conn)
		if _, ok := m.Data.Volumes["base:sounds/late.ogg"]; ok {
			return
		}
	}
	t.Fatal("tick broadcast never carried the new table")
}

func TestHub_CountClients_MultipleClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newSource(nil), time.Hour)

	for i := 0; i < 3; i++ {
		conn := dial(t, wsURL)
		readMessage(t, conn) // consume initial message
	}
	waitCount(t, hub, 3)
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, newSource(nil), time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	conn.Close()
	waitCount(t, hub, 0)
}

func TestHub_CancelClosesClients(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newSource(nil), time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("ReadMessage after cancel: got %v, want going-away close", err)
	}
	waitCount(t, hub, 0)
}

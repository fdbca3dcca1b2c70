package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"counterdrone-sim/internal/broadcast"
)

func TestWebSocketStreamsSnapshot(t *testing.T) {
	_, e := newTestServer(t, nil)
	loop := broadcast.New(e, broadcast.Options{})
	defer loop.Stop()
	s := NewServer(e, loop, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg broadcast.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != broadcast.TypeDrones || len(msg.Drones) != 5 {
		t.Fatalf("expected initial snapshot with 5 drones, got %s/%d", msg.Type, len(msg.Drones))
	}

	if _, err := e.AddDrone(); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := loop.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read alert: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != broadcast.TypeAlert {
		t.Fatalf("expected alert message, got %s (%v)", data, err)
	}

	if got := loop.Stats().Observers; got != 1 {
		t.Fatalf("expected 1 observer, got %d", got)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for loop.Stats().Observers != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("observer not unregistered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketIdleClientKeptAlive(t *testing.T) {
	oldWait, oldPeriod := pongWait, pingPeriod
	pongWait, pingPeriod = 300*time.Millisecond, 100*time.Millisecond
	t.Cleanup(func() { pongWait, pingPeriod = oldWait, oldPeriod })

	_, e := newTestServer(t, nil)
	loop := broadcast.New(e, broadcast.Options{})
	defer loop.Stop()
	s := NewServer(e, loop, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	// The client never writes; reading is what answers the server pings.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	time.Sleep(4 * pongWait)
	if got := loop.Stats().Observers; got != 1 {
		t.Fatalf("idle client dropped: %d observers", got)
	}
	select {
	case err := <-readErr:
		t.Fatalf("client connection closed: %v", err)
	default:
	}

	conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for loop.Stats().Observers != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("observer not unregistered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketWithoutHub(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

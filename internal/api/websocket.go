package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"counterdrone-sim/internal/broadcast"
)

const writeWait = 10 * time.Second

// Browsers only answer pings, so the server pings well inside the read deadline.
var (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// wsObserver forwards broadcast messages to one WebSocket client.
type wsObserver struct {
	conn   *websocket.Conn
	remote string
	mu     sync.Mutex
	once   sync.Once
}

func (o *wsObserver) Name() string { return "websocket" }

// Send writes msg as a text frame. The write deadline follows ctx.
func (o *wsObserver) Send(ctx context.Context, msg broadcast.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return o.conn.WriteMessage(websocket.TextMessage, data)
}

// ping writes a ping control frame, serialized with Send.
func (o *wsObserver) ping() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// keepAlive pings the client every pingPeriod until done is closed or a
// ping fails.
func (o *wsObserver) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := o.ping(); err != nil {
				return
			}
		}
	}
}

// Close sends a close frame and tears the connection down.
func (o *wsObserver) Close() error {
	var err error
	o.once.Do(func() {
		o.mu.Lock()
		o.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		o.mu.Unlock()
		err = o.conn.Close()
	})
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "broadcast not running")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	obs := &wsObserver{conn: conn, remote: r.RemoteAddr}
	id, err := s.hub.Register(obs)
	if err != nil {
		s.log.Warn("websocket register failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	s.log.Info("websocket client connected", "remote_addr", r.RemoteAddr, "observer", id)

	// Client frames are only read to notice disconnects.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	done := make(chan struct{})
	go obs.keepAlive(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", "remote_addr", r.RemoteAddr, "err", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	close(done)
	s.hub.Unregister(id)
	s.log.Info("websocket client disconnected", "remote_addr", r.RemoteAddr, "observer", id)
}

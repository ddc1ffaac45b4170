package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meridian-labs/swapd/pkg/pubsub"
	"github.com/meridian-labs/swapd/pkg/storage"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// handleOrderSocket upgrades the connection and serves one subscriber.
func (s *Server) handleOrderSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws upgrade failed", "err", err)
		return
	}
	go s.serveSubscriber(conn)
}

// serveSubscriber implements the snapshot-then-live protocol for one
// connection: attach to the order's update channel first, then send the
// current state, then relay published events verbatim until disconnect. The
// channel subscription is released on every teardown path.
func (s *Server) serveSubscriber(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The client's first frame names the order to observe.
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var req wsSubscribeRequest
	if err := json.Unmarshal(msg, &req); err != nil || req.OrderID == "" {
		s.writeJSON(conn, wsErrorFrame{Error: "expected {\"orderId\": ...}"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscribe before reading the snapshot: an update published while we
	// read current state is then buffered instead of lost. A stale read is
	// merely superseded by a buffered event, which is safe.
	sub, err := s.subscriber.Subscribe(ctx, pubsub.ChannelFor(req.OrderID))
	if err != nil {
		s.log.Errorw("channel subscribe failed", "order_id", req.OrderID, "err", err)
		s.writeJSON(conn, wsErrorFrame{OrderID: req.OrderID, Error: "subscription unavailable"})
		return
	}
	defer sub.Close()

	o, err := s.store.Get(ctx, req.OrderID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if werr := s.writeJSON(conn, wsErrorFrame{OrderID: req.OrderID, Error: "order not found"}); werr != nil {
			return
		}
	case err != nil:
		s.log.Errorw("snapshot read failed", "order_id", req.OrderID, "err", err)
		s.writeJSON(conn, wsErrorFrame{OrderID: req.OrderID, Error: "order unavailable"})
		return
	default:
		snap := OrderSnapshot{
			OrderID: o.ID,
			Status:  o.Status,
			TxHash:  o.TxHash,
			Error:   o.Error,
			Logs:    o.Logs,
		}
		if werr := s.writeJSON(conn, snap); werr != nil {
			return
		}
	}

	s.log.Infow("subscriber attached", "order_id", req.OrderID)

	// Reader pump: detects disconnect and keeps pong handling alive. Any
	// further client frames are ignored; disconnect is the only teardown
	// signal.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-sub.Events():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			s.log.Infow("subscriber disconnected", "order_id", req.OrderID)
			return
		}
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

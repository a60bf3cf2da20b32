package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/afurourrego/dungeonflip/internal/events"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingEvery    = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamFilter narrows the live feed to one event type and/or token.
type streamFilter struct {
	typ   events.Type
	token uint64
}

func (f streamFilter) match(env events.Envelope) bool {
	if f.typ != "" && env.Type != f.typ {
		return false
	}
	if f.token != 0 && env.TokenID != f.token {
		return false
	}
	return true
}

// handleEventStream pushes every bus envelope to a websocket client as
// JSON. Clients that fall behind lose events; the journal endpoint fills
// the gap by seq.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	filter := streamFilter{typ: events.Type(r.URL.Query().Get("type"))}
	if raw := r.URL.Query().Get("token"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.errorHandler.HandleValidationError(w, r, "token", "must be a non-negative integer")
			return
		}
		filter.token = v
	}

	// Subscribe first so nothing emitted after the handshake is missed.
	feed, cancelFeed := s.world.Bus.Subscribe(streamBuffer)
	defer cancelFeed()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("ws_upgrade_failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.logger.Printf("ws_subscribed remote=%s type=%s token=%d", r.RemoteAddr, filter.typ, filter.token)

	// Reader loop only services control frames.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingEvery)
	defer ping.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("ws_closed remote=%s sent=%d", r.RemoteAddr, sent)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		case env, ok := <-feed:
			if !ok {
				return
			}
			if !filter.match(env) {
				continue
			}
			b, err := json.Marshal(env)
			if err != nil {
				s.logger.Printf("ws_encode_failed seq=%d err=%v", env.Seq, err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
			sent++
		}
	}
}

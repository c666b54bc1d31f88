package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/countrelay/internal/hub"
)

const (
	defaultSendBuffer     = 64
	defaultMaxMessageSize = 4096
	defaultPingInterval   = 30
	defaultPongTimeout    = 10
	closeWriteTimeout     = time.Second
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsTimings are the keepalive settings of a viewer connection.
type wsTimings struct {
	maxMessageSize int64
	pingInterval   time.Duration
	pongWait       time.Duration
}

func (s *Server) wsTimings() wsTimings {
	t := wsTimings{
		maxMessageSize: defaultMaxMessageSize,
		pingInterval:   defaultPingInterval * time.Second,
		pongWait:       defaultPongTimeout * time.Second,
	}
	if s.wsCfg.MaxMessageSize > 0 {
		t.maxMessageSize = int64(s.wsCfg.MaxMessageSize)
	}
	if s.wsCfg.PingInterval > 0 {
		t.pingInterval = time.Duration(s.wsCfg.PingInterval) * time.Second
	}
	if s.wsCfg.PongTimeout > 0 {
		t.pongWait = time.Duration(s.wsCfg.PongTimeout) * time.Second
	}
	return t
}

// handleWebSocket upgrades a viewer connection and attaches it to the hub.
// A handshake without a valid session is closed with 1008.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, authErr := s.auth.VerifyIdentity(r.Context(), sessionToken(r))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if authErr != nil {
		s.logger.Debug("websocket refused", "error", authErr)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorised")
		//nolint:errcheck // Best-effort close frame before dropping the connection
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		conn.Close()
		return
	}

	buffer := s.wsCfg.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	client := hub.NewClient(buffer)
	if err := client.Authenticate(userID); err != nil {
		conn.Close()
		return
	}
	if err := s.hub.Register(client); err != nil {
		conn.Close()
		return
	}

	timings := s.wsTimings()
	go s.writePump(conn, client, timings)
	go s.readPump(conn, client, timings)
}

// readPump feeds viewer frames to the hub until the connection drops.
func (s *Server) readPump(conn *websocket.Conn, client *hub.Client, t wsTimings) {
	defer func() {
		s.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(t.maxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(t.pingInterval + t.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.pingInterval + t.pongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "user_id", client.UserID(), "error", err)
			} else {
				s.logger.Debug("websocket closed", "user_id", client.UserID(), "error", err)
			}
			return
		}
		// Any frame, including "ping", keeps the connection alive.
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(t.pingInterval + t.pongWait))

		req := hub.ParseRequest(frame)
		if req.Keepalive || req.Pins == nil {
			continue
		}

		pins, err := s.hub.Subscribe(context.Background(), client, req.Pins)
		if err != nil {
			s.logger.Warn("subscription failed", "user_id", client.UserID(), "error", err)
			continue
		}
		if !s.hub.Deliver(client, hub.SubscribedReply(pins)) {
			return
		}
	}
}

// writePump drains the client's queue into the socket and sends pings.
func (s *Server) writePump(conn *websocket.Conn, client *hub.Client, t wsTimings) {
	ticker := time.NewTicker(t.pingInterval)
	defer func() {
		ticker.Stop()
		s.hub.Unregister(client)
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			if !ok {
				//nolint:errcheck // Best-effort close message
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			conn.SetWriteDeadline(time.Now().Add(t.pongWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			conn.SetWriteDeadline(time.Now().Add(t.pongWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"collab-api/domain"
)

const (
	socketSendBuffer = 64
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
	persistTimeout   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers enforce same-origin for the HTTP API; the socket carries its
	// own bearer token, so cross-origin upgrades are acceptable here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// socket is one connected realtime client.
type socket struct {
	conn     *websocket.Conn
	send     chan []byte
	identity Identity

	closeOnce sync.Once
}

func (s *socket) close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

// serveSocket upgrades the connection and runs the read loop. The bearer
// token comes from the Authorization header or, for browser WebSocket
// clients that cannot set headers, the token query parameter.
func serveSocket(hub *Hub, store MessageStore, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		identity, err := auth.IdentityFromAuthHeader(authHeader)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logger.Errorf("websocket upgrade: %v", err)
			return nil
		}

		s := &socket{
			conn:     conn,
			send:     make(chan []byte, socketSendBuffer),
			identity: identity,
		}
		go s.writePump(logger)

		defer func() {
			hub.drop(s)
			s.close()
			_ = conn.Close()
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return nil
			}
			var frame domain.Frame
			if err := sonic.ConfigStd.Unmarshal(data, &frame); err != nil {
				logger.Debugf("ignoring malformed frame from %s: %v", identity.ID, err)
				continue
			}
			dispatchFrame(hub, store, deduper, logger, s, frame)
		}
	}
}

func dispatchFrame(hub *Hub, store MessageStore, deduper Deduper, logger *log.Logger, s *socket, frame domain.Frame) {
	switch frame.Event {
	case domain.EventJoinUserRoom:
		var data domain.JoinUserRoomData
		if err := sonic.ConfigStd.Unmarshal(frame.Data, &data); err != nil {
			return
		}
		// A socket may only subscribe to its own private channel.
		if data.UserID != s.identity.ID {
			logger.Warnf("socket %s refused user room %s", s.identity.ID, data.UserID)
			return
		}
		hub.join(domain.UserRoom(data.UserID), s)

	case domain.EventJoinProject:
		var data domain.JoinProjectData
		if err := sonic.ConfigStd.Unmarshal(frame.Data, &data); err != nil {
			return
		}
		if data.ProjectID == "" {
			return
		}
		hub.join(domain.ProjectRoom(data.ProjectID), s)

	case domain.EventSendMessage:
		var data domain.SendMessageData
		if err := sonic.ConfigStd.Unmarshal(frame.Data, &data); err != nil {
			return
		}
		handleSendMessage(hub, store, deduper, logger, s, data)

	default:
		logger.Debugf("unknown frame event %q from %s", frame.Event, s.identity.ID)
	}
}

// handleSendMessage persists the message and then broadcasts it to the
// project room, sender included, so clients reconcile against the echoed
// copy. A persistence failure suppresses the broadcast; no error frame is
// sent back — the sender infers failure by the absence of the echo.
func handleSendMessage(hub *Hub, store MessageStore, deduper Deduper, logger *log.Logger, s *socket, data domain.SendMessageData) {
	if data.ProjectID == "" || data.Content == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	// The sender identity always comes from the token, not the payload.
	msg := domain.Message{
		ID:         data.ID,
		Project:    data.ProjectID,
		Sender:     s.identity.ID,
		SenderName: s.identity.Name,
		Content:    data.Content,
	}
	if msg.SenderName == "" {
		msg.SenderName = data.SenderName
	}

	if msg.ID != "" {
		added, err := deduper.Add(ctx, msg.Project, msg.ID)
		if err != nil {
			logger.Errorf("message dedupe: %v", err)
			return
		}
		if !added {
			// Retry of an already persisted message; at-most-once.
			return
		}
	}

	saved, err := store.AppendMessage(ctx, msg)
	if err != nil {
		logger.Errorf("persist message: %v", err)
		if msg.ID != "" {
			if rerr := deduper.Remove(ctx, msg.Project, msg.ID); rerr != nil {
				logger.Errorf("dedupe rollback: %v", rerr)
			}
		}
		return
	}

	payload, err := sonic.ConfigStd.Marshal(saved)
	if err != nil {
		logger.Errorf("encode message: %v", err)
		return
	}
	frame := domain.Frame{Event: domain.EventReceiveMessage, Data: payload}
	if err := hub.Publish(ctx, domain.ProjectRoom(msg.Project), frame); err != nil {
		logger.Errorf("broadcast message: %v", err)
	}
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with pings. It exits when the buffer channel is closed.
func (s *socket) writePump(logger *log.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeTimeout))
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debugf("socket write: %v", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

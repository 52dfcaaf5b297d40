package server

import (
	"net/http"
	"time"

	"poolbet/domain/entities"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	frameTypePool = "pool"
	frameTypeChat = "chat"

	writeWait     = 10 * time.Second
	pingPeriod    = 30 * time.Second
	outboxSize    = 16
	chatFrameSize = 50
)

// Frame is a single message pushed to websocket clients
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// handlePoolSocket streams pool and chat updates for one pool until the client goes away
func (s *Server) handlePoolSocket(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(r)
	if !ok {
		invalidRequest(w, "Pool id must be a positive integer.")
		return
	}
	principal := PrincipalFrom(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketID := uuid.New().String()
	logger := log.WithFields(log.Fields{
		"socket_id": socketID,
		"pool_id":   poolID,
		"user_id":   principal.UserID,
	})
	logger.Info("WebSocket connection established")

	outbox := make(chan Frame, outboxSize)
	done := make(chan struct{})

	// drop frames rather than block the realtime dispatcher on a slow client
	push := func(frame Frame) {
		select {
		case <-done:
		case outbox <- frame:
		default:
			logger.Warn("WebSocket client is slow, dropping frame")
		}
	}

	if pool, _, err := s.deps.Pools.GetPool(r.Context(), poolID); err == nil && pool != nil {
		push(Frame{Type: frameTypePool, Data: ToPoolDTO(pool)})
	}
	if messages, err := s.deps.Pools.GetMessages(r.Context(), poolID, chatFrameSize); err == nil {
		push(Frame{Type: frameTypeChat, Data: messages})
	}

	var unsubscribes []func()
	if unsubscribe, err := s.deps.Pools.OnPoolUpdate(poolID, func(pool *entities.Pool) {
		push(Frame{Type: frameTypePool, Data: ToPoolDTO(pool)})
	}); err != nil {
		logger.WithError(err).Warn("Failed to subscribe to pool updates")
	} else {
		unsubscribes = append(unsubscribes, unsubscribe)
	}
	if unsubscribe, err := s.deps.Pools.OnChatUpdate(poolID, func(messages []*entities.ChatMessage) {
		push(Frame{Type: frameTypeChat, Data: messages})
	}); err != nil {
		logger.WithError(err).Warn("Failed to subscribe to chat updates")
	} else {
		unsubscribes = append(unsubscribes, unsubscribe)
	}

	go s.writeLoop(conn, outbox, done, logger)

	defer func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
		close(done)
		conn.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Warn("WebSocket unexpected close")
			}
			return
		}
	}
}

// writeLoop is the only goroutine that writes to conn
func (s *Server) writeLoop(conn *websocket.Conn, outbox <-chan Frame, done <-chan struct{}, logger *log.Entry) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case frame := <-outbox:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				logger.WithError(err).Debug("Failed to write WebSocket frame")
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

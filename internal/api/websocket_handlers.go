package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"rag-chat/internal/logger"
	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

/*
Chat over websocket.

Each text frame from the client is a chat request ({messages, withContext}).
The server answers with JSON frames:

	{"type":"token","token":"..."}     one per generated token
	{"type":"data","data":{...}}       the context payload
	{"type":"error","error":"..."}     the turn failed
	{"type":"done"}                    end of the turn

Turns on one connection run one at a time. All writes go through the
session's Send channel so only WritePump touches the connection.
*/

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
)

const (
	frameTypeToken = "token"
	frameTypeData  = "data"
	frameTypeError = "error"
	frameTypeDone  = "done"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsFrame struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// ChatSession is one websocket connection streaming chat turns
type ChatSession struct {
	ID   string
	User *models.User
	Conn *websocket.Conn
	Send chan []byte

	chat   ChatService
	turnMu sync.Mutex
	turns  sync.WaitGroup
}

// ChatWebSocket upgrades the connection and serves chat turns until the client leaves
func (h *Handler) ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.FromContext(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}

	session := &ChatSession{
		ID:   uuid.NewString(),
		User: middleware.UserFromContext(r.Context()),
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
		chat: h.chat,
	}

	// The request context ends when the handler returns, so the session gets its own
	ctx := logger.ContextWithLogger(context.Background(),
		logger.FromContext(r.Context()).With("session_id", session.ID))
	ctx = middleware.ContextWithUser(ctx, session.User)
	logger.FromContext(ctx).Info("chat session opened")

	go session.WritePump()
	session.ReadPump(ctx)
}

// ReadPump reads chat requests until the connection closes, then shuts the session down
func (s *ChatSession) ReadPump(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	log := logger.FromContext(ctx)
	defer func() {
		cancel()
		s.turns.Wait()
		close(s.Send)
		log.Info("chat session closed")
	}()

	s.Conn.SetReadLimit(maxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read failed", "error", err)
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.reject(ctx, &models.ValidationError{Fields: []string{"body"}, Reason: fmt.Sprintf("invalid json: %v", err)})
			continue
		}
		if err := validateRequest(&req); err != nil {
			s.reject(ctx, err)
			continue
		}

		s.turns.Add(1)
		go s.runTurn(ctx, req)
	}
}

func (s *ChatSession) runTurn(ctx context.Context, req chatRequest) {
	defer s.turns.Done()
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	ctx, span := middleware.StartSpan(ctx, "WebSocket.ChatTurn",
		attribute.String("session.id", s.ID),
		attribute.Int("messages.count", len(req.Messages)),
	)
	defer span.End()

	if err := s.chat.Chat(ctx, req.toService(s.User), &sessionSink{session: s, ctx: ctx}); err != nil {
		logger.FromContext(ctx).Warn("chat turn failed", "error", err)
	}
}

// reject answers a malformed request with an error frame and ends the turn
func (s *ChatSession) reject(ctx context.Context, err error) {
	sink := &sessionSink{session: s, ctx: ctx}
	_ = sink.Error(err)
	_ = sink.Close()
}

// WritePump writes queued frames and keeps the connection alive with pings
func (s *ChatSession) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sessionSink adapts a chat session to the services stream sink
type sessionSink struct {
	session *ChatSession
	ctx     context.Context
	closed  bool
}

func (k *sessionSink) Token(token string) error {
	return k.send(wsFrame{Type: frameTypeToken, Token: token})
}

func (k *sessionSink) Data(payload any) error {
	return k.send(wsFrame{Type: frameTypeData, Data: payload})
}

func (k *sessionSink) Error(err error) error {
	return k.send(wsFrame{Type: frameTypeError, Error: err.Error()})
}

func (k *sessionSink) Close() error {
	if k.closed {
		return nil
	}
	k.closed = true
	return k.send(wsFrame{Type: frameTypeDone})
}

func (k *sessionSink) send(frame wsFrame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode websocket frame: %w", err)
	}
	select {
	case k.session.Send <- body:
		return nil
	case <-k.ctx.Done():
		return fmt.Errorf("websocket session closed: %w", k.ctx.Err())
	}
}

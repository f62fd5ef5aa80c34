package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatservice "github.com/voralis/skycast/backend/internal/service/chat"
	"github.com/voralis/skycast/backend/internal/service/dialogue"
)

// Handler delivers dialogue turns over a websocket connection, for
// clients that prefer a duplex channel to SSE.
type Handler struct {
	engine   *dialogue.Engine
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
}

// New creates the websocket handler.
func New(engine *dialogue.Engine, chatSvc *chatservice.Service) *Handler {
	return &Handler{
		engine:  engine,
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage is the payload of a user_message frame.
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// conn serializes writes; the ping loop and the turn stream would
// otherwise write concurrently.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// handleWebSocket upgrades the connection and processes user messages
// until the client goes away.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	if _, err := h.chatSvc.GetOrCreateSession(r.Context(), sessionID); err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer wsConn.Close()

	log.Printf("[ws] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{ws: wsConn}

	wsConn.SetReadDeadline(time.Now().Add(60 * time.Second))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go h.pingLoop(ctx, c)

	h.send(c, sessionID, "connected", nil)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg inboundMessage
			if err := wsConn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[ws] read error: %v", err)
				}
				return
			}

			wsConn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if msg.SessionID != "" && msg.SessionID != sessionID {
				h.sendError(c, sessionID, "session mismatch")
				continue
			}

			h.handleMessage(ctx, c, sessionID, &msg)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *conn, sessionID string, msg *inboundMessage) {
	switch msg.Type {
	case "user_message":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil || text.Text == "" {
			h.sendError(c, sessionID, "user_message requires a text field")
			return
		}
		h.streamTurn(ctx, c, sessionID, text.Text)
	default:
		h.sendError(c, sessionID, "unsupported message type: "+msg.Type)
	}
}

// streamTurn runs one dialogue turn and relays its fragments as delta
// frames, followed by the full message.
func (h *Handler) streamTurn(ctx context.Context, c *conn, sessionID, userText string) {
	fragments, err := h.engine.HandleTurn(ctx, sessionID, userText)
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionBusy) {
			h.sendError(c, sessionID, "session busy")
			return
		}
		log.Printf("[ws] failed to start turn for session=%s: %v", sessionID, err)
		h.sendError(c, sessionID, "failed to start turn")
		return
	}
	defer fragments.Close()

	var full strings.Builder
	for {
		fragment, recvErr := fragments.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			h.sendError(c, sessionID, recvErr.Error())
			return
		}

		full.WriteString(fragment)
		h.send(c, sessionID, "delta", TextMessage{Text: fragment})
	}

	h.send(c, sessionID, "message", TextMessage{Text: full.String()})
}

func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) send(c *conn, sessionID, msgType string, data interface{}) {
	frame := outgoingMessage{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := c.writeJSON(frame); err != nil {
		log.Printf("[ws] write failed: %v", err)
	}
}

func (h *Handler) sendError(c *conn, sessionID, message string) {
	h.send(c, sessionID, "error", map[string]string{"message": message})
}

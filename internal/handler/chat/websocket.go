package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/sahayak/backend/internal/service/turn"
	"github.com/zhouzirui/sahayak/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *Handler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{userID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	UserID    string      `json:"userId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

func (c *wsConn) write(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket starts the user's session and runs one turn per inbound
// "message" frame.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	record, err := h.turns.Start(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, statusFor(err), publicError(err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("[websocket] upgrade failed", "user", userID, "error", err)
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn, userID: userID}
	h.logger.Infow("[websocket] new connection", "user", userID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxBodyBytes)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, ws)

	h.send(ws, "connected", map[string]any{
		"messages":      len(record.ChatHistory),
		"needsFollowUp": record.NeedsFollowUp,
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnw("[websocket] read error", "user", userID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, ws, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, ws *wsConn, msg *inboundMessage) {
	switch msg.Type {
	case "message":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			h.sendError(ws, "invalid message payload")
			return
		}
		result, err := h.turns.HandleTurn(ctx, ws.userID, text.Text)
		if err != nil && !errors.Is(err, turn.ErrAssistantPersistFailed) {
			h.logger.Warnw("[websocket] turn failed", "user", ws.userID, "error", err)
		}
		h.send(ws, "reply", newTurnResponse(result, err))
	case "history":
		record, err := h.turns.History(ctx, ws.userID)
		if err != nil {
			h.sendError(ws, publicError(err))
			return
		}
		h.send(ws, "history", record.ChatHistory)
	default:
		h.sendError(ws, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) send(ws *wsConn, kind string, data interface{}) {
	msg := outgoingMessage{
		Type:      kind,
		UserID:    ws.userID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := ws.write(msg); err != nil {
		h.logger.Debugw("[websocket] write failed", "user", ws.userID, "error", err)
	}
}

func (h *Handler) sendError(ws *wsConn, message string) {
	h.send(ws, "error", map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, ws *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				return
			}
		}
	}
}

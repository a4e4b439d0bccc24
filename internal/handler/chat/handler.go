package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/sahayak/backend/internal/logging"
	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
	"github.com/zhouzirui/sahayak/backend/internal/service/escalation"
	"github.com/zhouzirui/sahayak/backend/internal/service/turn"
	"github.com/zhouzirui/sahayak/backend/pkg/utils"
)

// TurnService is the orchestrator surface used by the handlers.
type TurnService interface {
	Start(ctx context.Context, userID string) (*chat.Record, error)
	HandleTurn(ctx context.Context, userID, text string) (turn.Result, error)
	History(ctx context.Context, userID string) (*chat.Record, error)
}

// maxBodyBytes caps JSON request bodies and inbound websocket frames.
const maxBodyBytes = 1 << 20

// Handler 聊天服务的HTTP处理器
type Handler struct {
	turns  TurnService
	logger *zap.SugaredLogger
}

// New 创建聊天处理器
func New(turns TurnService, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		turns:  turns,
		logger: logging.OrNop(logger),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users/{userID}", func(u chi.Router) {
		u.Post("/session", h.handleStartSession)
		u.Post("/messages", h.handleSendMessage)
		u.Post("/messages/stream", h.handleStreamMessage)
		u.Get("/history", h.handleHistory)
	})
}

type sessionResponse struct {
	UserID                  string `json:"userId"`
	CreatedAt               string `json:"createdAt"`
	Messages                int    `json:"messages"`
	NeedsFollowUp           bool   `json:"needsFollowUp"`
	NeedsImmediateAttention bool   `json:"needsImmediateAttention"`
}

type turnResponse struct {
	TurnID    string                `json:"turnId"`
	Reply     string                `json:"reply"`
	RiskLevel chat.RiskLevel        `json:"riskLevel"`
	Degraded  bool                  `json:"degraded"`
	Persisted bool                  `json:"persisted"`
	Resources []escalation.Resource `json:"resources,omitempty"`
}

type historyResponse struct {
	UserID      string         `json:"userId"`
	CreatedAt   string         `json:"createdAt"`
	ChatHistory []chat.Message `json:"chatHistory"`
}

// handleStartSession 加载或创建用户记录并打开会话
func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	record, err := h.turns.Start(r.Context(), userID)
	if err != nil {
		h.logger.Warnw("[chat] start session failed", "user", userID, "error", err)
		utils.RespondError(w, statusFor(err), publicError(err))
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionResponse{
		UserID:                  record.UserID,
		CreatedAt:               record.CreatedAt,
		Messages:                len(record.ChatHistory),
		NeedsFollowUp:           record.NeedsFollowUp,
		NeedsImmediateAttention: record.NeedsImmediateAttention,
	})
}

// handleSendMessage 处理一轮对话
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	message, ok := decodeMessage(w, r)
	if !ok {
		return
	}

	result, err := h.turns.HandleTurn(r.Context(), userID, message)
	resp := newTurnResponse(result, err)
	if err != nil && !errors.Is(err, turn.ErrAssistantPersistFailed) {
		h.logger.Warnw("[chat] turn failed", "user", userID, "turn", result.TurnID, "error", err)
		utils.RespondJSON(w, statusFor(err), resp)
		return
	}
	if err != nil {
		h.logger.Errorw("[chat] reply delivered but not persisted", "user", userID, "turn", result.TurnID, "error", err)
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// decodeMessage reads the {"message": ...} body and writes the error
// response itself when the body is oversized or malformed.
func decodeMessage(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return "", false
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return payload.Message, true
}

// handleHistory 返回持久化的对话记录
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	record, err := h.turns.History(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, statusFor(err), publicError(err))
		return
	}

	utils.RespondJSON(w, http.StatusOK, historyResponse{
		UserID:      record.UserID,
		CreatedAt:   record.CreatedAt,
		ChatHistory: record.ChatHistory,
	})
}

func newTurnResponse(result turn.Result, err error) turnResponse {
	resp := turnResponse{
		TurnID:    result.TurnID,
		Reply:     result.Text,
		RiskLevel: result.Risk,
		Degraded:  result.Degraded,
		Persisted: err == nil,
	}
	if err == nil || errors.Is(err, turn.ErrAssistantPersistFailed) {
		resp.Resources = escalation.Resources(result.Risk)
	}
	return resp
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, turn.ErrUserIDRequired), errors.Is(err, turn.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, turn.ErrNoActiveSession):
		return http.StatusConflict
	case errors.Is(err, turn.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, turn.ErrUserPersistFailed),
		errors.Is(err, turn.ErrRecordLoadFailed),
		errors.Is(err, turn.ErrCrisisCheckBlocked):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func publicError(err error) string {
	switch {
	case errors.Is(err, turn.ErrUserIDRequired):
		return "userID is required"
	case errors.Is(err, turn.ErrRecordNotFound):
		return "user not found"
	default:
		return turn.RetryText
	}
}

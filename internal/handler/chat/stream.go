package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
	"github.com/zhouzirui/sahayak/backend/internal/service/escalation"
	"github.com/zhouzirui/sahayak/backend/internal/service/turn"
	"github.com/zhouzirui/sahayak/backend/pkg/utils"
)

// SSE event names emitted by the stream route, in order.
const (
	eventStart   = "start"
	eventRisk    = "risk"
	eventMessage = "message"
	eventError   = "error"
	eventEnd     = "end"
)

type riskEvent struct {
	Level     chat.RiskLevel        `json:"level"`
	Resources []escalation.Resource `json:"resources,omitempty"`
}

type streamEnd struct {
	TurnID    string `json:"turnId"`
	Degraded  bool   `json:"degraded"`
	Persisted bool   `json:"persisted"`
}

// handleStreamMessage runs one turn and reports it as SSE events. Risk is
// sent before the reply so clients can surface resources first.
func (h *Handler) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	message, ok := decodeMessage(w, r)
	if !ok {
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, eventStart, map[string]string{"userId": userID}); err != nil {
		return
	}

	result, err := h.turns.HandleTurn(r.Context(), userID, message)
	if err != nil && !errors.Is(err, turn.ErrAssistantPersistFailed) {
		h.logger.Warnw("[chat] streamed turn failed", "user", userID, "turn", result.TurnID, "error", err)
		_ = utils.SendSSEEvent(w, flusher, eventError, map[string]any{
			"status":  statusFor(err),
			"message": publicError(err),
		})
		return
	}
	if err != nil {
		h.logger.Errorw("[chat] reply delivered but not persisted", "user", userID, "turn", result.TurnID, "error", err)
	}

	resp := newTurnResponse(result, err)
	events := []struct {
		name string
		data interface{}
	}{
		{eventRisk, riskEvent{Level: resp.RiskLevel, Resources: resp.Resources}},
		{eventMessage, map[string]string{"content": resp.Reply}},
		{eventEnd, streamEnd{TurnID: resp.TurnID, Degraded: resp.Degraded, Persisted: resp.Persisted}},
	}
	for _, ev := range events {
		if err := utils.SendSSEEvent(w, flusher, ev.name, ev.data); err != nil {
			h.logger.Debugw("[chat] sse client went away", "user", userID, "error", err)
			return
		}
	}
}

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	analysis "github.com/zhouzirui/voice-tavern/backend/internal/analysis/emotion"
	chatmodel "github.com/zhouzirui/voice-tavern/backend/internal/model/chat"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/assistant"
	"github.com/zhouzirui/voice-tavern/backend/pkg/utils"
)

// TextExchanger 处理一次文本输入交换。
type TextExchanger interface {
	TextExchange(ctx context.Context, text string, label analysis.Label) (assistant.Exchange, error)
}

// HistoryProvider 提供会话快照。
type HistoryProvider interface {
	Snapshot() chatmodel.Snapshot
}

// Handler 文本对话处理器
type Handler struct {
	exchanger TextExchanger
	history   HistoryProvider
}

// New 创建文本对话处理器
func New(exchanger TextExchanger, history HistoryProvider) *Handler {
	return &Handler{exchanger: exchanger, history: history}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.Chat)
	r.Get("/history", h.History)
}

// ChatRequest 是 POST /chat 的请求体。Emotion 为空时沿用最近一次语音情绪。
type ChatRequest struct {
	Message string `json:"message"`
	Emotion string `json:"emotion,omitempty"`
}

// Chat 处理文本消息
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	var label analysis.Label
	if req.Emotion != "" {
		parsed, ok := analysis.ParseLabel(req.Emotion)
		if !ok {
			utils.RespondError(w, r, http.StatusBadRequest, "Unknown emotion: "+req.Emotion)
			return
		}
		label = parsed
	}

	exchange, err := h.exchanger.TextExchange(r.Context(), req.Message, label)
	if errors.Is(err, assistant.ErrBusy) {
		utils.RespondError(w, r, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		utils.RespondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, exchange)
}

// History 返回当前会话历史
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.history.Snapshot())
}

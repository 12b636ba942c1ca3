package voice

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/assistant"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/capture"
	"github.com/zhouzirui/voice-tavern/backend/pkg/utils"
)

// SSE 事件名
const (
	EventAttempt = "attempt"
	EventCapture = "capture"
	EventReply   = "reply"
	EventError   = "error"
)

// VoiceExchanger 执行一次语音交换。
type VoiceExchanger interface {
	VoiceExchange(ctx context.Context, obs assistant.Observer) (assistant.Exchange, error)
}

// Handler 语音交换处理器
type Handler struct {
	exchanger VoiceExchanger
	logger    *zap.Logger
}

// New 创建语音交换处理器
func New(exchanger VoiceExchanger, logger *zap.Logger) *Handler {
	return &Handler{exchanger: exchanger, logger: logging.OrNop(logger).Named("http.voice")}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/voice", h.Voice)
	r.Get("/voice/stream", h.Stream)
}

// Voice 在服务端麦克风上执行一次完整交换并返回结果。
func (h *Handler) Voice(w http.ResponseWriter, r *http.Request) {
	exchange, err := h.exchanger.VoiceExchange(r.Context(), assistant.Observer{})
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

// Stream 与 Voice 相同，但通过 SSE 推送每次尝试、采集结果与最终回复。
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	obs := assistant.Observer{
		OnAttempt: func(ev capture.Event) {
			utils.SendSSEEvent(w, flusher, EventAttempt, ev)
		},
		OnCapture: func(res capture.Result) {
			utils.SendSSEEvent(w, flusher, EventCapture, res)
		},
	}

	exchange, err := h.exchanger.VoiceExchange(r.Context(), obs)
	if err != nil {
		h.logger.Warn("voice stream failed", zap.Error(err))
		utils.SendSSEEvent(w, flusher, EventError, map[string]string{"error": err.Error()})
		return
	}
	utils.SendSSEEvent(w, flusher, EventReply, exchange)
}

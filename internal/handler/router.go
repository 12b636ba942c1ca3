package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/handler/chat"
	"github.com/zhouzirui/voice-tavern/backend/internal/handler/voice"
	"github.com/zhouzirui/voice-tavern/backend/internal/middleware"
	"github.com/zhouzirui/voice-tavern/backend/pkg/utils"
)

// Health 是 /api/health 的响应体。
type Health struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
	Voice     bool   `json:"voice"`
}

// NewRouter 创建并配置路由
func NewRouter(chatHandler *chat.Handler, voiceHandler *voice.Handler, health func() Health, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, health())
		})
		chatHandler.RegisterRoutes(r)
		voiceHandler.RegisterRoutes(r)
	})

	return r
}

package utils

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorResponse 是所有错误响应的统一结构。RequestID 来自 chi 的 RequestID 中间件。
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

// RespondError logs the failure with the request id and writes it back so a
// client report can be matched to the server log line.
func RespondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	reqID := middleware.GetReqID(r.Context())
	logger := zap.L().With(zap.String("requestId", reqID), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		logger.Error(message, zap.String("path", r.URL.Path))
	} else {
		logger.Debug(message, zap.String("path", r.URL.Path))
	}
	RespondJSON(w, status, ErrorResponse{Error: message, RequestID: reqID})
}

package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorBody 错误响应体，与前端约定的 {"error": "..."} 格式一致
type ErrorBody struct {
	Error string `json:"error"`
}

// RespondJSON 发送JSON响应，编码失败时记录到调用方的日志器
func RespondJSON(log *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && log != nil {
		log.Warn("failed to encode response", zap.Int("status", status), zap.Error(err))
	}
}

// RespondError 发送错误响应
func RespondError(log *zap.Logger, w http.ResponseWriter, status int, message string) {
	RespondJSON(log, w, status, ErrorBody{Error: message})
}

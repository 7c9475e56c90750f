package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
)

// ErrorBody 对外的结构化错误载荷；kind 稳定，message 面向人。
type ErrorBody struct {
	Kind    speechmodel.ErrorKind `json:"kind"`
	Message string                `json:"message"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, kind speechmodel.ErrorKind, message string) {
	RespondJSON(w, status, map[string]ErrorBody{"error": {Kind: kind, Message: message}})
}

package voice

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ssalazarv/voicegate/internal/model/voice"
	"github.com/ssalazarv/voicegate/pkg/utils"
)

// Handler 语音目录的HTTP处理器
type Handler struct {
	voices voice.Store
}

// New 创建语音目录处理器
func New(voices voice.Store) *Handler {
	return &Handler{
		voices: voices,
	}
}

// RegisterRoutes 注册语音目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voices", h.handleListVoices)
}

// handleListVoices 列出可用音色，支持按语言与供应商过滤。
func (h *Handler) handleListVoices(w http.ResponseWriter, r *http.Request) {
	language := strings.ToLower(r.URL.Query().Get("language"))
	provider := strings.ToLower(r.URL.Query().Get("provider"))

	all := h.voices.List()
	filtered := make([]voice.Voice, 0, len(all))
	for _, v := range all {
		if language != "" && !strings.HasPrefix(strings.ToLower(v.Language), language) {
			continue
		}
		if provider != "" && strings.ToLower(v.Provider) != provider {
			continue
		}
		filtered = append(filtered, v)
	}

	utils.RespondJSON(w, http.StatusOK, filtered)
}

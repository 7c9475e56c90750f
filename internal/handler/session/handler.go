package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
	"github.com/ssalazarv/voicegate/internal/model/voice"
	conversationservice "github.com/ssalazarv/voicegate/internal/service/conversation"
	"github.com/ssalazarv/voicegate/pkg/utils"
)

// Handler 会话管理的HTTP处理器
type Handler struct {
	convSvc *conversationservice.Service
	voices  voice.Store
}

// New 创建会话处理器
func New(convSvc *conversationservice.Service, voices voice.Store) *Handler {
	return &Handler{
		convSvc: convSvc,
		voices:  voices,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Get("/sessions/{sessionID}/transcript", h.handleGetTranscript)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VoiceID  string `json:"voiceId"`
		Language string `json:"language"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "invalid request body")
		return
	}

	if payload.VoiceID != "" {
		payload.VoiceID = h.voices.Resolve(payload.VoiceID)
		if _, ok := h.voices.FindByID(payload.VoiceID); !ok {
			utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "voice not found")
			return
		}
	}

	session, err := h.convSvc.CreateSession(r.Context(), payload.VoiceID, payload.Language)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, speechmodel.KindInternal, "failed to create session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleGetSession 查询会话
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.convSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, speechmodel.KindValidation, "session not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, session)
}

// handleGetTranscript 查询会话的完整对话记录
func (h *Handler) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	turns, err := h.convSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		kind := speechmodel.KindInternal
		if errors.Is(err, conversationservice.ErrSessionNotFound) {
			status = http.StatusNotFound
			kind = speechmodel.KindValidation
		}
		utils.RespondError(w, status, kind, "failed to load transcript")
		return
	}

	utils.RespondJSON(w, http.StatusOK, turns)
}

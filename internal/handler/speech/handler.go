package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ssalazarv/voicegate/internal/model/conversation"
	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
	"github.com/ssalazarv/voicegate/internal/service/audioclip"
	conversationservice "github.com/ssalazarv/voicegate/internal/service/conversation"
	"github.com/ssalazarv/voicegate/pkg/utils"
)

// maxUploadBytes 单次上传音频的上限。
const maxUploadBytes = 32 << 20

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Recognize(ctx context.Context, req *speechmodel.RecognizeRequest) (*speechmodel.RecognizeResponse, error)
	Synthesize(ctx context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.SynthesizeResponse, error)
	RecognizeStream(ctx context.Context, sessionID string, audio <-chan []byte, results chan<- *speechmodel.StreamingChunk) error
}

// AssistantService 抽象对话助手，converse 端点使用。
type AssistantService interface {
	Reply(ctx context.Context, sessionID string, history []conversation.Turn, userText string) (string, error)
}

// Handler 语音网关的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	assistant AssistantService
	convSvc   *conversationservice.Service
	clips     *audioclip.Cache
	logger    *zap.Logger
}

// New 创建语音处理器；assistant 可以为 nil，对应端点返回 503。
func New(speechSvc SpeechService, assistant AssistantService, convSvc *conversationservice.Service, clips *audioclip.Cache, logger *zap.Logger) *Handler {
	return &Handler{
		speechSvc: speechSvc,
		assistant: assistant,
		convSvc:   convSvc,
		clips:     clips,
		logger:    logger,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/recognize", h.handleRecognize)
		speechRouter.Post("/recognize/{sessionID}", h.handleRecognizeWithSession)

		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Post("/synthesize/{sessionID}", h.handleSynthesizeWithSession)

		speechRouter.Post("/converse/{sessionID}", h.handleConverse)

		speechRouter.Get("/health", h.handleHealth)

		if h.speechSvc != nil {
			wsHandler := NewWebSocketHandler(h.speechSvc, h.logger)
			wsHandler.RegisterWebSocketRoutes(speechRouter)
		} else {
			speechRouter.Get("/ws/{sessionID}", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusNotImplemented, speechmodel.KindInternal, "speech websocket not available")
			})
		}
	})

	r.Get("/audio/{clipID}", h.handleClip)
}

func (h *Handler) handleRecognize(w http.ResponseWriter, r *http.Request) {
	h.processRecognize(w, r, "")
}

func (h *Handler) handleRecognizeWithSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "sessionID is required")
		return
	}

	h.processRecognize(w, r, sessionID)
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	h.processSynthesize(w, r, "")
}

func (h *Handler) handleSynthesizeWithSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "sessionID is required")
		return
	}

	h.processSynthesize(w, r, sessionID)
}

func (h *Handler) processRecognize(w http.ResponseWriter, r *http.Request, overrideSessionID string) {
	req, ok := h.parseRecognizeRequest(w, r, overrideSessionID)
	if !ok {
		return
	}

	resp, err := h.speechSvc.Recognize(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err, "recognize")
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// parseRecognizeRequest 把 multipart 表单解析为识别请求；任何缺陷都在
// 这里以 400 终结，不触发任何上游活动。
func (h *Handler) parseRecognizeRequest(w http.ResponseWriter, r *http.Request, overrideSessionID string) (*speechmodel.RecognizeRequest, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "failed to parse multipart form: "+err.Error())
		return nil, false
	}

	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "audio file is required")
		return nil, false
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "failed to read audio payload")
		return nil, false
	}
	if len(audio) == 0 {
		utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "audio payload is empty")
		return nil, false
	}

	sessionID := overrideSessionID
	if sessionID == "" {
		sessionID = r.FormValue("sessionId")
	}

	sampleRate := 0
	if raw := r.FormValue("sampleRate"); raw != "" {
		sampleRate, err = strconv.Atoi(raw)
		if err != nil || sampleRate < 0 {
			utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "sampleRate must be a non-negative integer")
			return nil, false
		}
	}

	return &speechmodel.RecognizeRequest{
		SessionID:  sessionID,
		Audio:      audio,
		Format:     inferAudioFormat(header.Filename),
		Language:   r.FormValue("language"),
		SampleRate: sampleRate,
	}, true
}

func (h *Handler) processSynthesize(w http.ResponseWriter, r *http.Request, overrideSessionID string) {
	var req speechmodel.SynthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "invalid request body")
		return
	}

	if overrideSessionID != "" {
		req.SessionID = overrideSessionID
	}

	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, speechmodel.KindValidation, "text is required")
		return
	}

	if strings.TrimSpace(req.Voice) == "" && req.SessionID != "" {
		req.Voice = h.resolveVoiceFromSession(r.Context(), req.SessionID)
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), &req)
	if err != nil {
		h.respondServiceError(w, r, err, "synthesize")
		return
	}

	wantLink := r.URL.Query().Get("link") == "true"
	if wantLink && h.clips != nil && h.clips.Enabled() && len(resp.AudioData) > 0 {
		_, signedURL := h.clips.Put(resp.SessionID, resp.AudioData, resp.Format)
		resp.AudioURL = signedURL
		utils.RespondJSON(w, http.StatusOK, resp)
		return
	}

	if len(resp.AudioData) > 0 {
		format := resp.Format
		if format == "" {
			format = "octet-stream"
		}
		w.Header().Set("Content-Type", "audio/"+format)
		w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
		w.Header().Set("Content-Disposition", "attachment; filename=speech."+format)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(resp.AudioData); err != nil {
			h.logger.Warn("failed to write audio response", zap.Error(err))
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleConverse 完整语音回路：识别 -> 助手回复 -> 合成。
func (h *Handler) handleConverse(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil || h.convSvc == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, speechmodel.KindInternal, "assistant not configured")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.convSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, speechmodel.KindValidation, "session not found")
		return
	}

	req, ok := h.parseRecognizeRequest(w, r, sessionID)
	if !ok {
		return
	}
	if req.Language == "" {
		req.Language = session.Language
	}

	recognized, err := h.speechSvc.Recognize(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err, "converse")
		return
	}

	history, err := h.convSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		history = nil
	}

	if err := h.convSvc.SaveTurn(r.Context(), conversation.Turn{
		SessionID: sessionID,
		Sender:    "user",
		Content:   recognized.Text,
	}); err != nil {
		h.logger.Warn("failed to save user turn", zap.Error(err))
	}

	reply, err := h.assistant.Reply(r.Context(), sessionID, history, recognized.Text)
	if err != nil {
		h.respondServiceError(w, r, err, "converse")
		return
	}

	if err := h.convSvc.SaveTurn(r.Context(), conversation.Turn{
		SessionID: sessionID,
		Sender:    "assistant",
		Content:   reply,
	}); err != nil {
		h.logger.Warn("failed to save assistant turn", zap.Error(err))
	}

	synthesized, err := h.speechSvc.Synthesize(r.Context(), &speechmodel.SynthesizeRequest{
		SessionID: sessionID,
		Text:      reply,
		Voice:     session.VoiceID,
		Language:  session.Language,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "converse")
		return
	}

	payload := map[string]any{
		"sessionId": sessionID,
		"inputText": recognized.Text,
		"replyText": reply,
		"format":    synthesized.Format,
	}
	if h.clips != nil && h.clips.Enabled() {
		_, signedURL := h.clips.Put(sessionID, synthesized.AudioData, synthesized.Format)
		payload["audioUrl"] = signedURL
	} else {
		payload["audio"] = base64.StdEncoding.EncodeToString(synthesized.AudioData)
	}

	utils.RespondJSON(w, http.StatusOK, payload)
}

// handleClip 回放缓存的合成音频；令牌无效与片段过期区分返回。
func (h *Handler) handleClip(w http.ResponseWriter, r *http.Request) {
	if h.clips == nil || !h.clips.Enabled() {
		utils.RespondError(w, http.StatusNotFound, speechmodel.KindValidation, "clip playback not enabled")
		return
	}

	clipID := chi.URLParam(r, "clipID")
	token := r.URL.Query().Get("token")

	clip, err := h.clips.Get(clipID, token)
	switch {
	case errors.Is(err, audioclip.ErrInvalidToken):
		utils.RespondError(w, http.StatusForbidden, speechmodel.KindValidation, "invalid or expired token")
		return
	case errors.Is(err, audioclip.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, speechmodel.KindValidation, "clip not found")
		return
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, speechmodel.KindInternal, "clip lookup failed")
		return
	}

	w.Header().Set("Content-Type", "audio/"+clip.Format)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(clip.Audio); err != nil {
		h.logger.Warn("failed to write clip response", zap.Error(err))
	}
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speech",
	})
}

func (h *Handler) resolveVoiceFromSession(ctx context.Context, sessionID string) string {
	if h.convSvc == nil {
		return ""
	}

	session, err := h.convSvc.GetSession(ctx, sessionID)
	if err != nil {
		return ""
	}
	return session.VoiceID
}

// respondServiceError 把服务层错误映射为HTTP响应。调用方已断开时
// 直接放弃写响应。
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		h.logger.Debug("client disconnected mid-request", zap.String("op", op))
		return
	}

	kind := speechmodel.KindOf(err)
	status := statusForKind(kind)

	message := err.Error()
	if kind == speechmodel.KindInternal {
		h.logger.Error("unexpected failure", zap.String("op", op), zap.Error(err))
		message = op + " failed"
	}

	utils.RespondError(w, status, kind, message)
}

// statusForKind 错误类别到HTTP状态码的映射：调用方缺陷与凭证问题是
// 4xx，上游问题是 5xx。
func statusForKind(kind speechmodel.ErrorKind) int {
	switch kind {
	case speechmodel.KindValidation:
		return http.StatusBadRequest
	case speechmodel.KindCredential:
		return http.StatusUnauthorized
	case speechmodel.KindUpstreamRejected:
		return http.StatusBadGateway
	case speechmodel.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case speechmodel.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mp3":
		return "mp3"
	case ".wav":
		return "wav"
	case ".webm":
		return "webm"
	case ".m4a":
		return "m4a"
	case ".aac":
		return "aac"
	case ".ogg":
		return "ogg"
	case ".flac":
		return "flac"
	default:
		return "wav"
	}
}

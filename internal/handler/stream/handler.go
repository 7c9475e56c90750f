package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ssalazarv/voicegate/internal/model/conversation"
	assistantservice "github.com/ssalazarv/voicegate/internal/service/assistant"
	conversationservice "github.com/ssalazarv/voicegate/internal/service/conversation"
	"github.com/ssalazarv/voicegate/pkg/utils"
)

// Handler manages streaming assistant replies via Server-Sent Events
type Handler struct {
	assistantSvc *assistantservice.Service
	convSvc      *conversationservice.Service
	logger       *zap.Logger
}

// New creates a new stream handler
func New(assistantSvc *assistantservice.Service, convSvc *conversationservice.Service, logger *zap.Logger) *Handler {
	return &Handler{
		assistantSvc: assistantSvc,
		convSvc:      convSvc,
		logger:       logger,
	}
}

// RegisterRoutes wires the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")
	if userMessage == "" {
		http.Error(w, "message query parameter is required", http.StatusBadRequest)
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
		h.logger.Warn("stream request failed",
			zap.String("sessionId", sessionID),
			zap.Error(err),
		)
	}
}

// HandleStreamRequest streams an assistant reply for a voice session.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	session, err := h.convSvc.GetSession(ctx, sessionID)
	if err != nil {
		h.sendSSEError(w, flusher, "session not found")
		return err
	}

	history, err := h.convSvc.LoadTranscript(ctx, session.ID)
	if err != nil {
		h.sendSSEError(w, flusher, "failed to load conversation")
		return err
	}

	// Save user turn unless the client already persisted it via REST.
	if !hasMatchingUserTurn(history, sessionID, userMessage) {
		userTurn := conversation.Turn{
			SessionID: sessionID,
			Sender:    "user",
			Content:   userMessage,
		}
		if err := h.convSvc.SaveTurn(ctx, userTurn); err != nil {
			h.logger.Warn("failed to save user turn", zap.Error(err))
		} else {
			history = append(history, userTurn)
		}
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
	})

	replyText, err := h.dispatchReply(ctx, w, flusher, sessionID, history, userMessage)
	if err != nil {
		h.sendSSEError(w, flusher, "assistant generation failed")
		return err
	}

	assistantTurn := conversation.Turn{
		SessionID: sessionID,
		Sender:    "assistant",
		Content:   replyText,
	}
	if err := h.convSvc.SaveTurn(ctx, assistantTurn); err != nil {
		h.logger.Warn("failed to save assistant turn", zap.Error(err))
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	h.logger.Debug("stream completed", zap.String("sessionId", sessionID))
	return nil
}

// dispatchReply picks streaming or one-shot generation based on configuration.
func (h *Handler) dispatchReply(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, history []conversation.Turn, userMessage string) (string, error) {
	if h.assistantSvc.StreamingEnabled() {
		return h.streamReply(ctx, w, flusher, sessionID, history, userMessage)
	}

	replyText, err := h.assistantSvc.Reply(ctx, sessionID, history, userMessage)
	if err != nil {
		return "", err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   replyText,
	})

	return replyText, nil
}

func (h *Handler) streamReply(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, history []conversation.Turn, userMessage string) (string, error) {
	stream, err := h.assistantSvc.StreamReply(ctx, history, userMessage)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			h.sendSSE(w, flusher, StreamResponse{
				Event:     "delta",
				SessionID: sessionID,
				Content:   chunk.Content,
			})
		}
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   merged.Content,
	})

	return merged.Content, nil
}

func hasMatchingUserTurn(turns []conversation.Turn, sessionID, content string) bool {
	if len(turns) == 0 {
		return false
	}

	last := turns[len(turns)-1]
	return last.SessionID == sessionID && last.Sender == "user" && last.Content == content
}

// sendSSE sends a Server-Sent Event
func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

// sendSSEError sends an error via Server-Sent Events
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{
		Event: "error",
		Error: errorMsg,
	})
}

package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
)

const (
	wsReadDeadline  = 60 * time.Second
	wsPingInterval  = 54 * time.Second
	wsWriteDeadline = 10 * time.Second
)

// WebSocketHandler WebSocket流式识别处理器
type WebSocketHandler struct {
	speechSvc SpeechService
	manager   *ConnectionManager
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(speechSvc SpeechService, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		speechSvc: speechSvc,
		manager:   NewConnectionManager(),
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频分片消息；audioData 在线上是base64编码。
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

// ConfigMessage 连接级配置消息
type ConfigMessage struct {
	Language string `json:"language"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn 串行化并发写；gorilla连接不允许多协程同时写。
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// streamState 一次语音段对应一个流式识别通道；isFinal 到达后关闭
// 音频通道并等待识别协程退出。
type streamState struct {
	audio   chan []byte
	done    chan struct{}
	started bool
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	rawConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.manager.AddConnection(sessionID, rawConn)
	defer func() {
		h.manager.RemoveConnection(sessionID, rawConn)
		rawConn.Close()
	}()

	h.logger.Info("websocket connected", zap.String("sessionId", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := &wsConn{conn: rawConn}

	rawConn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	rawConn.SetPongHandler(func(string) error {
		rawConn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, sessionID, "connected", map[string]any{
		"sessionId": sessionID,
	})

	language := ""
	state := &streamState{}
	defer h.finishStream(state)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			messageType, raw, err := rawConn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}

			rawConn.SetReadDeadline(time.Now().Add(wsReadDeadline))

			// 裸二进制帧按音频分片处理，段落边界由文本帧标记。
			if messageType == websocket.BinaryMessage {
				h.pushAudio(ctx, conn, sessionID, state, raw)
				continue
			}

			var msg inboundMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				h.sendError(conn, "invalid message payload")
				continue
			}

			if msg.SessionID != "" && msg.SessionID != sessionID {
				h.sendError(conn, "session mismatch")
				continue
			}

			switch msg.Type {
			case "audio":
				h.handleAudioMessage(ctx, conn, sessionID, state, &language, msg.Data)
			case "config":
				var cfg ConfigMessage
				if err := json.Unmarshal(msg.Data, &cfg); err != nil {
					h.sendError(conn, "invalid config payload")
					continue
				}
				if cfg.Language != "" {
					language = cfg.Language
				}
				h.send(conn, sessionID, "config", map[string]any{"language": language})
			default:
				h.sendError(conn, "unsupported message type: "+msg.Type)
			}
		}
	}
}

// pushAudio 把一段音频送入当前识别流，必要时先启动流。
func (h *WebSocketHandler) pushAudio(ctx context.Context, conn *wsConn, sessionID string, state *streamState, data []byte) {
	if len(data) == 0 {
		return
	}

	if !state.started {
		h.startStream(ctx, conn, sessionID, state)
	}

	select {
	case state.audio <- data:
	case <-ctx.Done():
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *wsConn, sessionID string, state *streamState, language *string, raw json.RawMessage) {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}
	if audio.Language != "" {
		*language = audio.Language
	}

	h.pushAudio(ctx, conn, sessionID, state, audio.AudioData)

	if audio.IsFinal {
		h.finishStream(state)
	}
}

// startStream 启动一段流式识别；结果协程把识别片段推回客户端。
func (h *WebSocketHandler) startStream(ctx context.Context, conn *wsConn, sessionID string, state *streamState) {
	state.audio = make(chan []byte, 16)
	state.done = make(chan struct{})
	state.started = true

	audio := state.audio
	done := state.done

	go func() {
		defer close(done)

		results := make(chan *speechmodel.StreamingChunk, 4)
		errCh := make(chan error, 1)

		go func() {
			errCh <- h.speechSvc.RecognizeStream(ctx, sessionID, audio, results)
			close(results)
		}()

		for chunk := range results {
			h.send(conn, sessionID, "transcript", chunk)
		}

		if err := <-errCh; err != nil {
			h.logger.Warn("streaming recognition failed",
				zap.String("sessionId", sessionID),
				zap.String("kind", string(speechmodel.KindOf(err))),
			)
			h.sendError(conn, "recognition failed: "+string(speechmodel.KindOf(err)))
		}
	}()
}

// finishStream 关闭音频通道并等待识别收尾。
func (h *WebSocketHandler) finishStream(state *streamState) {
	if !state.started {
		return
	}
	close(state.audio)
	<-state.done
	state.started = false
	state.audio = nil
	state.done = nil
}

func (h *WebSocketHandler) send(conn *wsConn, sessionID, msgType string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.logger.Warn("websocket write failed", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.logger.Warn("websocket write failed", zap.Error(err))
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
)

type streamingFakeService struct {
	fakeSpeechService
}

func (f *streamingFakeService) RecognizeStream(ctx context.Context, sessionID string, audio <-chan []byte, results chan<- *speechmodel.StreamingChunk) error {
	var total int
	for chunk := range audio {
		total += len(chunk)
	}
	if total == 0 {
		return nil
	}

	select {
	case results <- &speechmodel.StreamingChunk{
		SessionID: sessionID,
		Text:      "hola",
		IsFinal:   true,
		CreatedAt: time.Now().UTC(),
	}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func dialTestSocket(t *testing.T, sessionID string) (*websocket.Conn, func()) {
	t.Helper()

	wsHandler := NewWebSocketHandler(&streamingFakeService{}, zap.NewNop())

	r := chi.NewRouter()
	wsHandler.RegisterWebSocketRoutes(r)

	server := httptest.NewServer(r)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + sessionID

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		server.Close()
		t.Fatalf("Dial err: %v", err)
	}

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readMessageOfType(t *testing.T, conn *websocket.Conn, msgType string) outgoingMessage {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var msg outgoingMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON err: %v", err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %q message received", msgType)
	return outgoingMessage{}
}

func TestWebSocketStreamingTranscript(t *testing.T) {
	conn, cleanup := dialTestSocket(t, "sess-ws")
	defer cleanup()

	readMessageOfType(t, conn, "connected")

	audioPayload, _ := json.Marshal(AudioMessage{
		AudioData: []byte("pcm-bytes"),
		Format:    "pcm",
		IsFinal:   true,
	})
	if err := conn.WriteJSON(inboundMessage{
		Type:      "audio",
		SessionID: "sess-ws",
		Data:      audioPayload,
		Timestamp: time.Now().Unix(),
	}); err != nil {
		t.Fatalf("WriteJSON err: %v", err)
	}

	msg := readMessageOfType(t, conn, "transcript")
	raw, _ := json.Marshal(msg.Data)
	var chunk speechmodel.StreamingChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if chunk.Text != "hola" || !chunk.IsFinal {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}
	if chunk.SessionID != "sess-ws" {
		t.Fatalf("unexpected session: %s", chunk.SessionID)
	}
}

func TestWebSocketBinaryFramesFeedStream(t *testing.T) {
	conn, cleanup := dialTestSocket(t, "sess-bin")
	defer cleanup()

	readMessageOfType(t, conn, "connected")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("raw-pcm-frame")); err != nil {
		t.Fatalf("WriteMessage err: %v", err)
	}

	// Segment boundary arrives as a text envelope with no payload.
	finalPayload, _ := json.Marshal(AudioMessage{IsFinal: true})
	if err := conn.WriteJSON(inboundMessage{Type: "audio", Data: finalPayload}); err != nil {
		t.Fatalf("WriteJSON err: %v", err)
	}

	msg := readMessageOfType(t, conn, "transcript")
	raw, _ := json.Marshal(msg.Data)
	var chunk speechmodel.StreamingChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if chunk.Text != "hola" {
		t.Fatalf("unexpected transcript: %q", chunk.Text)
	}
}

func TestWebSocketSessionMismatchRejected(t *testing.T) {
	conn, cleanup := dialTestSocket(t, "sess-a")
	defer cleanup()

	readMessageOfType(t, conn, "connected")

	audioPayload, _ := json.Marshal(AudioMessage{AudioData: []byte("x"), IsFinal: true})
	if err := conn.WriteJSON(inboundMessage{
		Type:      "audio",
		SessionID: "sess-b",
		Data:      audioPayload,
	}); err != nil {
		t.Fatalf("WriteJSON err: %v", err)
	}

	msg := readMessageOfType(t, conn, "error")
	raw, _ := json.Marshal(msg.Data)
	if !strings.Contains(string(raw), "session mismatch") {
		t.Fatalf("unexpected error payload: %s", raw)
	}
}

func TestWebSocketUnsupportedMessageType(t *testing.T) {
	conn, cleanup := dialTestSocket(t, "sess-c")
	defer cleanup()

	readMessageOfType(t, conn, "connected")

	if err := conn.WriteJSON(inboundMessage{Type: "bogus"}); err != nil {
		t.Fatalf("WriteJSON err: %v", err)
	}

	readMessageOfType(t, conn, "error")
}

func TestAudioMessageBase64RoundTrip(t *testing.T) {
	// 客户端以 base64 字符串承载音频；encoding/json 对 []byte 正是该约定。
	payload := []byte(`{"audioData":"` + base64.StdEncoding.EncodeToString([]byte("pcm")) + `","isFinal":true}`)

	var msg AudioMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("Unmarshal err: %v", err)
	}
	if string(msg.AudioData) != "pcm" {
		t.Fatalf("unexpected audio: %q", msg.AudioData)
	}
	if !msg.IsFinal {
		t.Fatal("expected final flag")
	}
}

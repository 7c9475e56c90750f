package speech

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ssalazarv/voicegate/internal/config"
	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
	"github.com/ssalazarv/voicegate/internal/model/voice"
)

// streamFlushThreshold 流式识别的缓冲阈值，攒够一批再提交识别。
const streamFlushThreshold = 32 * 1024

// Engine 对外部语音供应商的窄能力抽象；真实实现与测试桩各一份。
type Engine interface {
	Recognize(ctx context.Context, req *speechmodel.RecognizeRequest) (*speechmodel.RecognizeResponse, error)
	Synthesize(ctx context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.SynthesizeResponse, error)
}

// Service 语音网关核心：校验请求、补全默认值、限定单次上游调用时长。
// 校验失败时不触发任何凭证获取或上游调用。
type Service struct {
	cfg    config.SpeechConfig
	engine Engine
	voices voice.Store
	logger *zap.Logger
}

// NewService 创建语音服务实例。
func NewService(cfg config.SpeechConfig, engine Engine, voices voice.Store, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		engine: engine,
		voices: voices,
		logger: logger,
	}
}

// Timeout 单次上游调用的时间上限。
func (s *Service) Timeout() time.Duration {
	return time.Duration(s.cfg.Timeout) * time.Second
}

// Recognize 语音转文字。
func (s *Service) Recognize(ctx context.Context, req *speechmodel.RecognizeRequest) (*speechmodel.RecognizeResponse, error) {
	if len(req.Audio) == 0 {
		return nil, speechmodel.NewValidationError("audio", "audio payload is required")
	}

	prepared := *req
	if prepared.SessionID == "" {
		prepared.SessionID = "default"
	}
	if prepared.Language == "" {
		prepared.Language = s.cfg.Language
	}
	if prepared.Format == "" {
		prepared.Format = "wav"
	}

	callCtx, cancel := context.WithTimeout(ctx, s.Timeout())
	defer cancel()

	resp, err := s.engine.Recognize(callCtx, &prepared)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("recognize completed",
		zap.String("sessionId", prepared.SessionID),
		zap.Int("audioBytes", len(prepared.Audio)),
		zap.Int("textLen", len(resp.Text)),
	)
	return resp, nil
}

// Synthesize 文字转语音。
func (s *Service) Synthesize(ctx context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.SynthesizeResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, speechmodel.NewValidationError("text", "text is required")
	}

	prepared := *req
	if prepared.SessionID == "" {
		prepared.SessionID = "default"
	}
	if prepared.Language == "" {
		prepared.Language = s.cfg.Language
	}
	if prepared.Format == "" {
		prepared.Format = "mp3"
	}
	if strings.TrimSpace(prepared.Voice) == "" {
		prepared.Voice = s.cfg.TTSVoice
	}
	if s.voices != nil {
		prepared.Voice = s.voices.Resolve(prepared.Voice)
	}
	if prepared.Speed == 0 {
		prepared.Speed = s.cfg.TTSSpeed
	}
	prepared.Speed = ClampSpeed(prepared.Speed)
	prepared.Pitch = ClampPitch(prepared.Pitch)

	callCtx, cancel := context.WithTimeout(ctx, s.Timeout())
	defer cancel()

	resp, err := s.engine.Synthesize(callCtx, &prepared)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("synthesize completed",
		zap.String("sessionId", prepared.SessionID),
		zap.String("voice", prepared.Voice),
		zap.Int("audioBytes", len(resp.AudioData)),
	)
	return resp, nil
}

// RecognizeStream 流式识别：把到达的音频块攒批提交，结果按块回推。
// 供应商侧仍是批量识别，长连接语义由网关自己维护。
func (s *Service) RecognizeStream(ctx context.Context, sessionID string, audio <-chan []byte, results chan<- *speechmodel.StreamingChunk) error {
	var buffer []byte

	flush := func(final bool) error {
		if len(buffer) == 0 {
			return nil
		}

		resp, err := s.Recognize(ctx, &speechmodel.RecognizeRequest{
			SessionID: sessionID,
			Audio:     buffer,
			Format:    "pcm",
		})
		buffer = buffer[:0]
		if err != nil {
			return err
		}

		chunk := &speechmodel.StreamingChunk{
			SessionID:  sessionID,
			Text:       resp.Text,
			IsFinal:    final,
			Confidence: resp.Confidence,
			RequestID:  resp.RequestID,
			CreatedAt:  time.Now().UTC(),
		}

		select {
		case results <- chunk:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-audio:
			if !ok {
				return flush(true)
			}
			buffer = append(buffer, data...)
			if len(buffer) >= streamFlushThreshold {
				if err := flush(false); err != nil {
					return err
				}
			}
		}
	}
}

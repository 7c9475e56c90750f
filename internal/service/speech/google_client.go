package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
	"github.com/ssalazarv/voicegate/internal/service/credential"
)

const (
	googleRecognizeURL  = "https://speech.googleapis.com/v1/speech:recognize"
	googleSynthesizeURL = "https://texttospeech.googleapis.com/v1/text:synthesize"
)

// GoogleClient Google 语音 REST 客户端；识别与合成共用同一份凭证。
type GoogleClient struct {
	creds  credential.Provider
	http   *http.Client
	logger *zap.Logger

	recognizeURL  string
	synthesizeURL string
}

// NewGoogleClient 创建 Google 语音客户端。
func NewGoogleClient(creds credential.Provider, logger *zap.Logger) *GoogleClient {
	return &GoogleClient{
		creds:         creds,
		http:          &http.Client{},
		logger:        logger,
		recognizeURL:  googleRecognizeURL,
		synthesizeURL: googleSynthesizeURL,
	}
}

type googleRecognitionConfig struct {
	Encoding                   string `json:"encoding,omitempty"`
	SampleRateHertz            int    `json:"sampleRateHertz,omitempty"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
}

type googleRecognizeRequest struct {
	Config googleRecognitionConfig `json:"config"`
	Audio  struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type googleRecognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
	TotalBilledTime string `json:"totalBilledTime"`
}

// Recognize 以单次 REST 调用做批量识别。
func (c *GoogleClient) Recognize(ctx context.Context, req *speechmodel.RecognizeRequest) (*speechmodel.RecognizeResponse, error) {
	cred, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload := googleRecognizeRequest{
		Config: googleRecognitionConfig{
			Encoding:                   googleEncoding(req.Format),
			SampleRateHertz:            req.SampleRate,
			LanguageCode:               req.Language,
			EnableAutomaticPunctuation: true,
		},
	}
	payload.Audio.Content = base64.StdEncoding.EncodeToString(req.Audio)

	body, err := c.post(ctx, c.recognizeURL, cred.Value, payload, "recognize")
	if err != nil {
		return nil, err
	}

	var decoded googleRecognizeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &speechmodel.UpstreamError{
			Kind:    speechmodel.UpstreamRejected,
			Message: "recognize: vendor response is not valid JSON",
			Err:     err,
		}
	}

	var transcript strings.Builder
	var confidence float64
	for _, result := range decoded.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		best := result.Alternatives[0]
		transcript.WriteString(best.Transcript)
		if best.Confidence > confidence {
			confidence = best.Confidence
		}
	}

	return &speechmodel.RecognizeResponse{
		SessionID:  req.SessionID,
		Text:       strings.TrimSpace(transcript.String()),
		Confidence: confidence,
		Duration:   parseBilledDuration(decoded.TotalBilledTime),
		RequestID:  uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

type googleSynthesizeRequest struct {
	Input struct {
		SSML string `json:"ssml"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

// Synthesize 以单次 REST 调用合成音频；韵律通过 SSML 表达。
func (c *GoogleClient) Synthesize(ctx context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.SynthesizeResponse, error) {
	cred, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload := googleSynthesizeRequest{}
	payload.Input.SSML = BuildSSML(req.Text, req.Voice, req.Language, req.Speed, req.Pitch)
	payload.Voice.LanguageCode = req.Language
	payload.Voice.Name = req.Voice
	payload.AudioConfig.AudioEncoding = googleAudioEncoding(req.Format)

	body, err := c.post(ctx, c.synthesizeURL, cred.Value, payload, "synthesize")
	if err != nil {
		return nil, err
	}

	var decoded struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &speechmodel.UpstreamError{
			Kind:    speechmodel.UpstreamRejected,
			Message: "synthesize: vendor response is not valid JSON",
			Err:     err,
		}
	}

	audio, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, &speechmodel.UpstreamError{
			Kind:    speechmodel.UpstreamRejected,
			Message: "synthesize: vendor audio payload is not valid base64",
			Err:     err,
		}
	}

	return &speechmodel.SynthesizeResponse{
		SessionID: req.SessionID,
		AudioData: audio,
		Format:    req.Format,
		RequestID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (c *GoogleClient) post(ctx context.Context, url, token string, payload any, op string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &speechmodel.UpstreamError{
			Kind:    speechmodel.UpstreamRejected,
			Message: op + ": failed to encode request",
			Err:     err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, wrapTransport(err, op)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapTransport(err, op)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, wrapTransport(err, op)
	}

	c.logger.Debug("google vendor call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(started)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, vendorStatusError(resp.StatusCode, body, op)
	}

	return body, nil
}

// googleEncoding 把容器格式映射到识别 API 的编码枚举。
func googleEncoding(format string) string {
	switch strings.ToLower(format) {
	case "wav", "pcm":
		return "LINEAR16"
	case "mp3":
		return "MP3"
	case "webm":
		return "WEBM_OPUS"
	case "ogg":
		return "OGG_OPUS"
	case "flac":
		return "FLAC"
	default:
		return ""
	}
}

func googleAudioEncoding(format string) string {
	switch strings.ToLower(format) {
	case "wav", "pcm":
		return "LINEAR16"
	case "ogg":
		return "OGG_OPUS"
	default:
		return "MP3"
	}
}

// parseBilledDuration 解析 "3s" 形态的计费时长为毫秒。
func parseBilledDuration(raw string) int64 {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d.Milliseconds()
}

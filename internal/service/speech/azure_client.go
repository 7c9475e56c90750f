package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
	"github.com/ssalazarv/voicegate/internal/service/credential"
)

// AzureClient Azure 认知语音 REST 客户端。verbose 打开后记录供应商
// 侧的请求 ID、状态行与时延；凭证本身绝不落日志。
type AzureClient struct {
	creds   credential.Provider
	http    *http.Client
	logger  *zap.Logger
	verbose bool

	recognizeBase  string
	synthesizeBase string
}

// NewAzureClient 创建区域化的 Azure 语音客户端。
func NewAzureClient(creds credential.Provider, region string, verbose bool, logger *zap.Logger) *AzureClient {
	return &AzureClient{
		creds:          creds,
		http:           &http.Client{},
		logger:         logger,
		verbose:        verbose,
		recognizeBase:  fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", region),
		synthesizeBase: fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region),
	}
}

type azureRecognizeResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Duration          int64  `json:"Duration"` // 100ns ticks
	NBest             []struct {
		Confidence float64 `json:"Confidence"`
		Display    string  `json:"Display"`
	} `json:"NBest"`
}

// Recognize 调用短语音识别端点。
func (c *AzureClient) Recognize(ctx context.Context, req *speechmodel.RecognizeRequest) (*speechmodel.RecognizeResponse, error) {
	cred, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.recognizeBase + "?" + url.Values{
		"language": {req.Language},
		"format":   {"detailed"},
	}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Audio))
	if err != nil {
		return nil, wrapTransport(err, "recognize")
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Value)
	httpReq.Header.Set("Content-Type", azureContentType(req.Format))
	httpReq.Header.Set("Accept", "application/json")

	body, requestID, err := c.do(httpReq, "recognize")
	if err != nil {
		return nil, err
	}

	var decoded azureRecognizeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &speechmodel.UpstreamError{
			Kind:    speechmodel.UpstreamRejected,
			Message: "recognize: vendor response is not valid JSON",
			Err:     err,
		}
	}

	if decoded.RecognitionStatus != "Success" {
		return nil, &speechmodel.UpstreamError{
			Kind:    speechmodel.UpstreamRejected,
			Message: "recognize: vendor status " + decoded.RecognitionStatus,
		}
	}

	text := decoded.DisplayText
	var confidence float64
	if len(decoded.NBest) > 0 {
		confidence = decoded.NBest[0].Confidence
		if text == "" {
			text = decoded.NBest[0].Display
		}
	}

	return &speechmodel.RecognizeResponse{
		SessionID:  req.SessionID,
		Text:       text,
		Confidence: confidence,
		Duration:   decoded.Duration / 10000,
		RequestID:  requestID,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Synthesize 调用 SSML 合成端点，响应体即音频字节。
func (c *AzureClient) Synthesize(ctx context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.SynthesizeResponse, error) {
	cred, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	ssml := BuildSSML(req.Text, req.Voice, req.Language, req.Speed, req.Pitch)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.synthesizeBase, strings.NewReader(ssml))
	if err != nil {
		return nil, wrapTransport(err, "synthesize")
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Value)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat(req.Format))

	audio, requestID, err := c.do(httpReq, "synthesize")
	if err != nil {
		return nil, err
	}

	return &speechmodel.SynthesizeResponse{
		SessionID: req.SessionID,
		AudioData: audio,
		Format:    req.Format,
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (c *AzureClient) do(req *http.Request, op string) ([]byte, string, error) {
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", wrapTransport(err, op)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, "", wrapTransport(err, op)
	}

	requestID := resp.Header.Get("X-RequestId")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	if c.verbose {
		c.logger.Info("azure vendor call",
			zap.String("op", op),
			zap.String("vendorRequestId", requestID),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", time.Since(started)),
			zap.Int("bytes", len(body)),
		)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, requestID, vendorStatusError(resp.StatusCode, body, op)
	}

	return body, requestID, nil
}

// azureContentType 识别请求的媒体类型；wav 按电话侧常见的 PCM 标注。
func azureContentType(format string) string {
	switch strings.ToLower(format) {
	case "wav", "pcm":
		return "audio/wav; codecs=audio/pcm; samplerate=16000"
	case "ogg", "webm":
		return "audio/ogg; codecs=opus"
	case "mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// azureOutputFormat wav 走 8kHz μ-law，方便直接回放到电话线路。
func azureOutputFormat(format string) string {
	switch strings.ToLower(format) {
	case "wav":
		return "riff-8khz-8bit-mono-mulaw"
	case "ogg":
		return "ogg-24khz-16bit-mono-opus"
	default:
		return "audio-24khz-48kbitrate-mono-mp3"
	}
}

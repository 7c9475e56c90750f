package credential

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
)

// Azure STS 签发的令牌有效期约 10 分钟；9 分钟后视为过期以留出余量。
const azureTokenTTL = 9 * time.Minute

// AzureProvider 用订阅密钥在区域 STS 端点换取短时令牌。
type AzureProvider struct {
	subscriptionKey string
	endpoint        string
	http            *http.Client
	logger          *zap.Logger
}

// NewAzureProvider 构建区域化的 STS 客户端。
func NewAzureProvider(subscriptionKey, region string, logger *zap.Logger) *AzureProvider {
	return &AzureProvider{
		subscriptionKey: subscriptionKey,
		endpoint:        fmt.Sprintf("https://%s.api.cognitive.microsoft.com/sts/v1.0/issueToken", region),
		http:            &http.Client{Timeout: refreshTimeout},
		logger:          logger,
	}
}

// Token 向 STS 端点兑换访问令牌。
func (p *AzureProvider) Token(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, nil)
	if err != nil {
		return Credential{}, &speechmodel.CredentialError{Reason: "failed to build STS request", Err: err}
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.subscriptionKey)
	req.Header.Set("Content-Length", "0")

	resp, err := p.http.Do(req)
	if err != nil {
		return Credential{}, &speechmodel.CredentialError{Reason: "STS endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credential{}, &speechmodel.CredentialError{Reason: "failed to read STS response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("STS rejected subscription key", zap.Int("status", resp.StatusCode))
		return Credential{}, &speechmodel.CredentialError{
			Reason: fmt.Sprintf("STS endpoint returned status %d", resp.StatusCode),
		}
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return Credential{}, &speechmodel.CredentialError{Reason: "STS returned an empty token"}
	}

	return Credential{
		Value:     token,
		ExpiresAt: time.Now().Add(azureTokenTTL),
	}, nil
}

package credential

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
)

const (
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	cloudScope      = "https://www.googleapis.com/auth/cloud-platform"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL    = time.Hour
)

// serviceAccount 服务账号 JSON 里实际用到的字段。
type serviceAccount struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// GoogleProvider 用服务账号文件换取短时 Bearer 令牌。
type GoogleProvider struct {
	account  serviceAccount
	key      *rsa.PrivateKey
	tokenURI string
	http     *http.Client
	logger   *zap.Logger
}

// NewGoogleProvider 解析 GOOGLE_CREDENTIALS_FILE 指向的服务账号文件。
// 文件缺失或损坏按 CredentialError 上抛。
func NewGoogleProvider(path string, logger *zap.Logger) (*GoogleProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &speechmodel.CredentialError{Reason: "credentials file is not readable", Err: err}
	}

	var account serviceAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, &speechmodel.CredentialError{Reason: "credentials file is not valid JSON", Err: err}
	}
	if account.ClientEmail == "" || account.PrivateKey == "" {
		return nil, &speechmodel.CredentialError{Reason: "credentials file is missing client_email or private_key"}
	}

	key, err := parsePrivateKey(account.PrivateKey)
	if err != nil {
		return nil, &speechmodel.CredentialError{Reason: "credentials file holds an unusable private key", Err: err}
	}

	tokenURI := strings.TrimSpace(account.TokenURI)
	if tokenURI == "" {
		tokenURI = defaultTokenURI
	}

	return &GoogleProvider{
		account:  account,
		key:      key,
		tokenURI: tokenURI,
		http:     &http.Client{Timeout: refreshTimeout},
		logger:   logger,
	}, nil
}

// Token 签发 JWT 断言并在令牌端点兑换访问令牌。
func (p *GoogleProvider) Token(ctx context.Context) (Credential, error) {
	assertion, err := p.signAssertion(time.Now())
	if err != nil {
		return Credential{}, &speechmodel.CredentialError{Reason: "failed to sign assertion", Err: err}
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, &speechmodel.CredentialError{Reason: "failed to build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return Credential{}, &speechmodel.CredentialError{Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credential{}, &speechmodel.CredentialError{Reason: "failed to read token response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("token endpoint rejected assertion", zap.Int("status", resp.StatusCode))
		return Credential{}, &speechmodel.CredentialError{
			Reason: fmt.Sprintf("token endpoint returned status %d", resp.StatusCode),
		}
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return Credential{}, &speechmodel.CredentialError{Reason: "token response is not valid JSON", Err: err}
	}
	if token.AccessToken == "" {
		return Credential{}, &speechmodel.CredentialError{Reason: "token response carries no access token"}
	}

	expiresIn := token.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return Credential{
		Value:     token.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

func (p *GoogleProvider) signAssertion(now time.Time) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: p.key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	claims := map[string]any{
		"iss":   p.account.ClientEmail,
		"scope": cloudScope,
		"aud":   p.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshaling claims: %w", err)
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("signing claims: %w", err)
	}

	return jws.CompactSerialize()
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		return rsaKey, nil
	}

	// 旧式 PKCS#1 文件兜底。
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

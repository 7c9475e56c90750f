package credential

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
)

func writeServiceAccountFile(t *testing.T, tokenURI string) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey err: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey err: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	account := map[string]string{
		"type":         "service_account",
		"client_email": "gateway@test-project.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
		"token_uri":    tokenURI,
	}
	raw, err := json.Marshal(account)
	if err != nil {
		t.Fatalf("Marshal err: %v", err)
	}

	path := filepath.Join(t.TempDir(), "service-account.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("WriteFile err: %v", err)
	}
	return path
}

func TestGoogleProviderExchangesAssertion(t *testing.T) {
	var gotGrant, gotAssertion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm err: %v", err)
		}
		gotGrant = r.PostFormValue("grant_type")
		gotAssertion = r.PostFormValue("assertion")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "ya29.test-token",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}))
	defer server.Close()

	path := writeServiceAccountFile(t, server.URL)
	provider, err := NewGoogleProvider(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGoogleProvider err: %v", err)
	}

	cred, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("Token err: %v", err)
	}

	if cred.Value != "ya29.test-token" {
		t.Fatalf("unexpected token value: %q", cred.Value)
	}
	if !cred.Valid(time.Now()) {
		t.Fatal("expected credential to be valid")
	}
	if gotGrant != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		t.Fatalf("unexpected grant type: %q", gotGrant)
	}
	if parts := strings.Split(gotAssertion, "."); len(parts) != 3 {
		t.Fatalf("expected compact JWT assertion, got %d segments", len(parts))
	}
}

func TestGoogleProviderRejectedAssertion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	path := writeServiceAccountFile(t, server.URL)
	provider, err := NewGoogleProvider(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGoogleProvider err: %v", err)
	}

	_, err = provider.Token(context.Background())
	if speechmodel.KindOf(err) != speechmodel.KindCredential {
		t.Fatalf("expected credential error, got %v", err)
	}
	// 凭证素材不得出现在错误信息里。
	if strings.Contains(err.Error(), "PRIVATE KEY") {
		t.Fatal("error message leaks key material")
	}
}

func TestGoogleProviderRejectsBrokenFiles(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"not json", "not-json"},
		{"missing fields", `{"type":"service_account"}`},
		{"bad key", `{"type":"service_account","client_email":"a@b.c","private_key":"not-a-pem"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "creds.json")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatalf("WriteFile err: %v", err)
			}

			_, err := NewGoogleProvider(path, zap.NewNop())
			if speechmodel.KindOf(err) != speechmodel.KindCredential {
				t.Fatalf("expected credential error, got %v", err)
			}
		})
	}
}

func TestAzureProviderIssueToken(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		w.Write([]byte("azure-jwt-token\n"))
	}))
	defer server.Close()

	provider := NewAzureProvider("sub-key", "eastus", zap.NewNop())
	provider.endpoint = server.URL

	cred, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("Token err: %v", err)
	}

	if gotKey != "sub-key" {
		t.Fatalf("unexpected subscription key header: %q", gotKey)
	}
	if cred.Value != "azure-jwt-token" {
		t.Fatalf("expected trimmed token, got %q", cred.Value)
	}
	if !cred.Valid(time.Now()) {
		t.Fatal("expected credential to be valid")
	}
}

func TestAzureProviderRejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	provider := NewAzureProvider("bad-key", "eastus", zap.NewNop())
	provider.endpoint = server.URL

	_, err := provider.Token(context.Background())
	if speechmodel.KindOf(err) != speechmodel.KindCredential {
		t.Fatalf("expected credential error, got %v", err)
	}
	if strings.Contains(err.Error(), "bad-key") {
		t.Fatal("error message leaks subscription key")
	}
}

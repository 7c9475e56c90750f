package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCredentialsFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "service-account.json")
	if err := os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatalf("WriteFile err: %v", err)
	}
	return path
}

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_CREDENTIALS_FILE", writeCredentialsFile(t))
	t.Setenv("PORT", "")
	t.Setenv("SPEECH_PROVIDER", "")
	t.Setenv("SPEECH_TIMEOUT", "")
	t.Setenv("AZURE_SPEECH_KEY", "")
	t.Setenv("AZURE_SPEECH_REGION", "")
	t.Setenv("AZURE_SPEECH_LOGGING_ENABLE", "")
	t.Setenv("TTS_SECRET", "")
	t.Setenv("TTS_TOKEN_TTL_SECONDS", "")
	t.Setenv("BASE_URL", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Speech.Provider != "google" {
		t.Fatalf("unexpected provider: %s", cfg.Speech.Provider)
	}
	if cfg.Speech.Timeout != 30 {
		t.Fatalf("unexpected timeout: %d", cfg.Speech.Timeout)
	}
	if cfg.Speech.Language != "es-CO" {
		t.Fatalf("unexpected language: %s", cfg.Speech.Language)
	}
	if cfg.Azure.Region != "eastus" {
		t.Fatalf("unexpected azure region: %s", cfg.Azure.Region)
	}
	if cfg.Azure.VerboseLogging {
		t.Fatal("verbose logging should default to false")
	}
	if cfg.Clips.TokenTTL != 300 {
		t.Fatalf("unexpected clip ttl: %d", cfg.Clips.TokenTTL)
	}
}

func TestLoadRequiresGoogleCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GOOGLE_CREDENTIALS_FILE", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing GOOGLE_CREDENTIALS_FILE")
	}
}

func TestLoadRejectsUnreadableCredentialsFile(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GOOGLE_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unreadable credentials file")
	}
}

func TestLoadPortValidation(t *testing.T) {
	cases := []struct {
		port     string
		wantAddr string
		wantErr  bool
	}{
		{"", ":8080", false},
		{"9000", ":9000", false},
		{":9000", ":9000", false},
		{"127.0.0.1:9000", "127.0.0.1:9000", false},
		{"abc", "", true},
		{"0", "", true},
		{"70000", "", true},
	}

	for _, tc := range cases {
		t.Run("port="+tc.port, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("PORT", tc.port)

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for PORT=%q", tc.port)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load err: %v", err)
			}
			if cfg.Server.Addr != tc.wantAddr {
				t.Fatalf("addr = %q, want %q", cfg.Server.Addr, tc.wantAddr)
			}
		})
	}
}

func TestLoadAzureProviderRequiresKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SPEECH_PROVIDER", "azure")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for azure provider without key")
	}

	t.Setenv("AZURE_SPEECH_KEY", "sub-key")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Speech.Provider != "azure" {
		t.Fatalf("unexpected provider: %s", cfg.Speech.Provider)
	}
	if !cfg.Azure.Enabled() {
		t.Fatal("azure config should be enabled")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SPEECH_PROVIDER", "watson")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SPEECH_TIMEOUT", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-positive timeout")
	}
}

func TestLoadVerboseLoggingFlag(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AZURE_SPEECH_LOGGING_ENABLE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if !cfg.Azure.VerboseLogging {
		t.Fatal("expected verbose logging enabled")
	}

	t.Setenv("AZURE_SPEECH_LOGGING_ENABLE", "not-a-bool")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed boolean")
	}
}

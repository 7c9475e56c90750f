package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。启动时加载一次，之后只读。
type Config struct {
	Server    ServerConfig
	Google    GoogleConfig
	Azure     AzureConfig
	Speech    SpeechConfig
	Clips     ClipConfig
	Assistant AssistantConfig
}

// Load 从环境变量加载配置。任何一项失败都会阻止进程对外服务。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	google, err := loadGoogleConfig()
	if err != nil {
		return nil, err
	}

	azure, err := loadAzureConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	if speech.Provider == "azure" && !azure.Enabled() {
		return nil, fmt.Errorf("SPEECH_PROVIDER=azure requires AZURE_SPEECH_KEY")
	}

	clips, err := loadClipConfig()
	if err != nil {
		return nil, err
	}

	assistant, err := loadAssistantConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Google:    google,
		Azure:     azure,
		Speech:    speech,
		Clips:     clips,
		Assistant: assistant,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + strconv.Itoa(n)}, nil
}

// GoogleConfig 描述 Google 凭证配置。
type GoogleConfig struct {
	CredentialsFile string
}

// loadGoogleConfig 校验凭证文件存在且可读；内容解析推迟到凭证提供者。
func loadGoogleConfig() (GoogleConfig, error) {
	path := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_FILE"))
	if path == "" {
		return GoogleConfig{}, fmt.Errorf("GOOGLE_CREDENTIALS_FILE is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return GoogleConfig{}, fmt.Errorf("GOOGLE_CREDENTIALS_FILE %q is not readable: %w", path, err)
	}
	_ = f.Close()

	return GoogleConfig{CredentialsFile: path}, nil
}

// AzureConfig 描述 Azure 语音服务配置。
type AzureConfig struct {
	SubscriptionKey string
	Region          string
	VerboseLogging  bool
}

// Enabled 表示是否提供了 Azure 订阅密钥。
func (c AzureConfig) Enabled() bool {
	return c.SubscriptionKey != ""
}

func loadAzureConfig() (AzureConfig, error) {
	verbose, err := parseBoolEnv("AZURE_SPEECH_LOGGING_ENABLE", false)
	if err != nil {
		return AzureConfig{}, err
	}

	return AzureConfig{
		SubscriptionKey: strings.TrimSpace(os.Getenv("AZURE_SPEECH_KEY")),
		Region:          getEnvOrDefault("AZURE_SPEECH_REGION", "eastus"),
		VerboseLogging:  verbose,
	}, nil
}

// SpeechConfig 描述语音操作的默认参数。
type SpeechConfig struct {
	Provider string // google | azure
	Timeout  int    // seconds, 单次上游调用上限
	Language string
	TTSVoice string
	TTSSpeed float32
	TTSPitch int
}

func loadSpeechConfig() (SpeechConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("SPEECH_PROVIDER", "google"))
	if provider != "google" && provider != "azure" {
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_PROVIDER value: %q", provider)
	}

	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		if *timeout < 1 {
			return SpeechConfig{}, fmt.Errorf("SPEECH_TIMEOUT must be positive, got %d", *timeout)
		}
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	pitch, err := parseOptionalIntEnv("SPEECH_TTS_PITCH")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsPitch := 0
	if pitch != nil {
		ttsPitch = *pitch
	}

	return SpeechConfig{
		Provider: provider,
		Timeout:  timeoutSeconds,
		Language: getEnvOrDefault("SPEECH_LANGUAGE", "es-CO"),
		TTSVoice: getEnvOrDefault("SPEECH_TTS_VOICE", "es-CO-SalomeNeural"),
		TTSSpeed: ttsSpeed,
		TTSPitch: ttsPitch,
	}, nil
}

// ClipConfig 描述合成音频片段缓存与签名链接配置。
type ClipConfig struct {
	Secret   string
	TokenTTL int // seconds
	BaseURL  string
}

func loadClipConfig() (ClipConfig, error) {
	ttl, err := parseOptionalIntEnv("TTS_TOKEN_TTL_SECONDS")
	if err != nil {
		return ClipConfig{}, err
	}
	ttlSeconds := 300
	if ttl != nil {
		if *ttl < 1 {
			return ClipConfig{}, fmt.Errorf("TTS_TOKEN_TTL_SECONDS must be positive, got %d", *ttl)
		}
		ttlSeconds = *ttl
	}

	return ClipConfig{
		Secret:   strings.TrimSpace(os.Getenv("TTS_SECRET")),
		TokenTTL: ttlSeconds,
		BaseURL:  strings.TrimRight(strings.TrimSpace(os.Getenv("BASE_URL")), "/"),
	}, nil
}

// AssistantConfig 描述对话助手模型相关配置。
type AssistantConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AssistantConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AssistantConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("assistant credentials missing: provide ARK_API_KEY + MODEL or AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAssistantConfig() (AssistantConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AssistantConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AssistantConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AssistantConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AssistantConfig{}, err
	}

	return AssistantConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}

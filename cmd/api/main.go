package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ssalazarv/voicegate/internal/config"
	"github.com/ssalazarv/voicegate/internal/handler"
	"github.com/ssalazarv/voicegate/internal/model/voice"
	"github.com/ssalazarv/voicegate/internal/service/assistant"
	"github.com/ssalazarv/voicegate/internal/service/audioclip"
	"github.com/ssalazarv/voicegate/internal/service/conversation"
	"github.com/ssalazarv/voicegate/internal/service/credential"
	"github.com/ssalazarv/voicegate/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Not fatal: container deployments pass everything via environment.
	}

	logger := createLogger(os.Getenv("VOICEGATE_LOG_LEVEL"))
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	voiceStore := voice.NewMemoryStore(voice.Seed())
	convService := conversation.NewService()

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize speech engine", zap.Error(err))
	}
	speechService := speech.NewService(cfg.Speech, engine, voiceStore, logger)
	logger.Info("speech service initialized", zap.String("provider", cfg.Speech.Provider))

	clipCache := audioclip.NewCache(cfg.Clips)
	if clipCache.Enabled() {
		logger.Info("audio clip cache enabled")
	}

	var assistantService *assistant.Service
	if cfg.Assistant.Enabled() {
		assistantService, err = assistant.NewService(ctx, cfg.Assistant, logger)
		if err != nil {
			logger.Warn("failed to initialize assistant service, continuing without it", zap.Error(err))
			assistantService = nil
		} else {
			logger.Info("assistant service initialized")
		}
	} else {
		logger.Info("assistant credentials not configured, converse and stream endpoints disabled")
	}

	router := handler.NewRouter(handler.Dependencies{
		Voices:    voiceStore,
		ConvSvc:   convService,
		SpeechSvc: speechService,
		Assistant: assistantService,
		Clips:     clipCache,
		Logger:    logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

// buildEngine 根据配置选择语音供应商，并在凭证源外套上单飞缓存。
func buildEngine(cfg *config.Config, logger *zap.Logger) (speech.Engine, error) {
	if cfg.Speech.Provider == "azure" {
		source := credential.NewAzureProvider(cfg.Azure.SubscriptionKey, cfg.Azure.Region, logger)
		creds := credential.NewCaching(source)
		return speech.NewAzureClient(creds, cfg.Azure.Region, cfg.Azure.VerboseLogging, logger), nil
	}

	source, err := credential.NewGoogleProvider(cfg.Google.CredentialsFile, logger)
	if err != nil {
		return nil, err
	}
	creds := credential.NewCaching(source)
	return speech.NewGoogleClient(creds, logger), nil
}

// createLogger 构建结构化日志器；未知级别退回 info。
func createLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if level != "" {
		if parsed, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil {
			lvl = parsed
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("voicegate listening", zap.String("addr", serverCfg.Addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

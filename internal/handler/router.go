package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	sessionhandler "github.com/ssalazarv/voicegate/internal/handler/session"
	speechhandler "github.com/ssalazarv/voicegate/internal/handler/speech"
	streamhandler "github.com/ssalazarv/voicegate/internal/handler/stream"
	voicehandler "github.com/ssalazarv/voicegate/internal/handler/voice"
	voicemodel "github.com/ssalazarv/voicegate/internal/model/voice"
	"github.com/ssalazarv/voicegate/internal/service/audioclip"
	assistantservice "github.com/ssalazarv/voicegate/internal/service/assistant"
	conversationservice "github.com/ssalazarv/voicegate/internal/service/conversation"
)

// Dependencies 路由依赖的全部服务；assistant 可为 nil。
type Dependencies struct {
	Voices    voicemodel.Store
	ConvSvc   *conversationservice.Service
	SpeechSvc speechhandler.SpeechService
	Assistant *assistantservice.Service
	Clips     *audioclip.Cache
	Logger    *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(120, time.Minute))

	voiceHandler := voicehandler.New(deps.Voices)
	sessionHandler := sessionhandler.New(deps.ConvSvc, deps.Voices)

	var speechAssistant speechhandler.AssistantService
	if deps.Assistant != nil {
		speechAssistant = deps.Assistant
	}
	speechHandler := speechhandler.New(deps.SpeechSvc, speechAssistant, deps.ConvSvc, deps.Clips, deps.Logger)

	r.Route("/api", func(api chi.Router) {
		voiceHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)

		if deps.Assistant != nil {
			streamHandler := streamhandler.New(deps.Assistant, deps.ConvSvc, deps.Logger)
			streamHandler.RegisterRoutes(api)
		}
	})

	return r
}

// requestLogger 结构化访问日志中间件
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("requestId", middleware.GetReqID(r.Context())),
			)
		})
	}
}

package handler

import (
	"github.com/gorilla/mux"

	"github.com/ClareAI/astra-call-bridge/internal/config"
	"github.com/ClareAI/astra-call-bridge/internal/core/registry"
	"github.com/ClareAI/astra-call-bridge/internal/telephony"
	"github.com/ClareAI/astra-call-bridge/pkg/logger"
)

// HandlerManager manages all handlers and their initialization
type HandlerManager struct {
	config        *config.Config
	reg           *registry.Registry
	tel           telephony.Client
	callService   CallService
	transcription TranscribeService
}

// NewHandlerManager creates the handler manager over already-wired
// services.
func NewHandlerManager(cfg *config.Config, reg *registry.Registry, tel telephony.Client, callService CallService, transcription TranscribeService) *HandlerManager {
	return &HandlerManager{
		config:        cfg,
		reg:           reg,
		tel:           tel,
		callService:   callService,
		transcription: transcription,
	}
}

// SetupAllRoutes sets up all routes with middleware. The health probe
// stays outside rate limiting and authentication.
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(LoggingMiddleware)
	if hm.config.EnableCORS {
		router.Use(CORSMiddleware)
	}
	router.Use(ValidationMiddleware)

	callHandler := NewCallHandler(hm.reg, hm.tel, hm.callService, hm.transcription)
	router.HandleFunc("/health", callHandler.Health).Methods("GET")

	controlRouter := router.NewRoute().Subrouter()
	if hm.config.RequestsPerSec > 0 {
		controlRouter.Use(RateLimitMiddleware(hm.config.RequestsPerSec))
	}
	if hm.config.APISecretKey != "" {
		controlRouter.Use(APIKeyMiddleware(hm.config.APISecretKey))
		logger.Base().Info("api key middleware enabled")
	}
	callHandler.SetupControlRoutes(controlRouter)

	logger.Base().Info("all application routes registered")
}

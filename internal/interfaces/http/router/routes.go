package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/scout/backend/internal/infrastructure/logger"
	"github.com/scout/backend/internal/interfaces/http/handler"
	"github.com/scout/backend/internal/interfaces/http/middleware"
)

// EngineConfig selects the global middleware of the engine.
type EngineConfig struct {
	Logger         *zap.Logger
	ServiceName    string
	Tracing        bool
	Meter          metric.Meter
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	TrustedProxies []string
}

// NewEngine builds a gin engine with the global middleware chain: panic
// recovery, request ids, tracing, metrics, access logging, security
// headers, CORS and the body size limit.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	middleware.SetupValidator()

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.TracingWithConfig(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.Tracing}),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(cfg.Meter),
		logger.GinMiddleware(log),
		middleware.Secure(),
		middleware.CORSWithConfig(cfg.CORS),
		middleware.BodyLimit(cfg.MaxBodySize),
	)
	return engine, nil
}

// PipelineRoutes returns the /pipeline-import routes.
func PipelineRoutes(h *handler.PipelineHandler) *DomainGroup {
	return NewDomainGroup("pipeline-import", "/pipeline-import").
		POST("/parse", h.Parse).
		GET("/preview", h.CurrentState).
		POST("/preview", h.Preview).
		GET("/preview/:id", h.GetPreview).
		POST("/apply", h.Apply)
}

// SystemRoutes returns the /system routes.
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").
		GET("/ping", h.Ping).
		GET("/info", h.GetSystemInfo)
}

// RegisterHealth mounts the unversioned health endpoint.
func RegisterHealth(engine *gin.Engine, h *handler.SystemHandler) {
	engine.GET("/health", h.Health)
}

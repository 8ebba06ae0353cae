package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/logcompliance/internal/http/handlers"
	httpMW "github.com/yungbote/logcompliance/internal/http/middleware"
	"github.com/yungbote/logcompliance/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	TriggerHandler      *httpH.TriggerHandler
	NotificationHandler *httpH.NotificationHandler
	JobHandler          *httpH.JobHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "logcompliance"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	{
		// Controller invocations
		if cfg.TriggerHandler != nil {
			api.POST("/triggers", cfg.TriggerHandler.Invoke)
		}

		// Storage events (Pub/Sub push)
		if cfg.NotificationHandler != nil {
			api.POST("/notifications/storage", cfg.NotificationHandler.Storage)
		}

		// Job
		if cfg.JobHandler != nil {
			api.GET("/jobs", cfg.JobHandler.ListJobs)
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}
	}

	return r
}

package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/benefits-backend/internal/http/handlers"
	httpMW "github.com/yungbote/benefits-backend/internal/http/middleware"
	"github.com/yungbote/benefits-backend/internal/observability"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AllowOrigins   []string
	AuthMiddleware *httpMW.AuthMiddleware

	CommandHandler *httpH.CommandHandler
	QueryHandler   *httpH.QueryHandler
	OpsHandler     *httpH.OpsHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS(cfg.AllowOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics))
	if cfg.AuthMiddleware != nil {
		r.Use(cfg.AuthMiddleware.Identify())
	}
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	// Commands
	if cfg.CommandHandler != nil {
		r.POST("/commands/:type", cfg.CommandHandler.Execute)
	}

	// Queries
	if cfg.QueryHandler != nil {
		r.GET("/queries", cfg.QueryHandler.Search)
		r.GET("/queries/:id", cfg.QueryHandler.GetBenefit)
		r.GET("/queries/subjects/:subjectId/summary", cfg.QueryHandler.SubjectSummary)
		r.GET("/catalog/benefit-types", cfg.QueryHandler.Catalog)
	}

	// Ops
	if cfg.OpsHandler != nil {
		ops := r.Group("/ops")
		if cfg.AuthMiddleware != nil {
			ops.Use(cfg.AuthMiddleware.RequireActor())
		}
		ops.GET("/dead-letters", cfg.OpsHandler.ListDeadLetters)
		ops.POST("/dead-letters/:id/replay", cfg.OpsHandler.ReplayDeadLetter)
		ops.GET("/breakers", cfg.OpsHandler.Breakers)
	}

	return r
}

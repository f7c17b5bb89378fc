// Package server wires the HTTP surface: authenticated item and
// analytics routes, the public guide routes, and the health/metrics
// endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/guidely/guidely/internal/analytics"
	analyticsdomain "github.com/guidely/guidely/internal/analytics/domain"
	"github.com/guidely/guidely/internal/cache"
	"github.com/guidely/guidely/internal/clock"
	"github.com/guidely/guidely/internal/company"
	companydomain "github.com/guidely/guidely/internal/company/domain"
	"github.com/guidely/guidely/internal/config"
	"github.com/guidely/guidely/internal/item"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/internal/migration"
	"github.com/guidely/guidely/internal/notification"
	"github.com/guidely/guidely/internal/observability"
	obslogger "github.com/guidely/guidely/internal/observability/logger"
	obsmetrics "github.com/guidely/guidely/internal/observability/metrics"
	obstracing "github.com/guidely/guidely/internal/observability/tracing"
	"github.com/guidely/guidely/internal/pipeline"
	"github.com/guidely/guidely/internal/providers"
	"github.com/guidely/guidely/internal/quota"
	"github.com/guidely/guidely/internal/ratelimit"
	"github.com/guidely/guidely/internal/scheduler"
	"github.com/guidely/guidely/internal/storage"
	"github.com/guidely/guidely/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("server",
	fx.Provide(registerGin),
	config.Module,
	observability.Module,
	clock.Module,
	db.Module,
	migration.Module,
	storage.Module,
	cache.Module,
	company.Module,
	quota.Module,
	providers.Module,
	notification.Module,
	pipeline.Module,
	item.Module,
	analytics.Module,
	ratelimit.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	companySvc    companydomain.Service
	itemSvc       itemdomain.Service
	analyticsSvc  analyticsdomain.Service
	publicLimiter *ratelimit.PublicLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	CompanySvc    companydomain.Service
	ItemSvc       itemdomain.Service
	AnalyticsSvc  analyticsdomain.Service
	PublicLimiter *ratelimit.PublicLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("server"),
		companySvc:    p.CompanySvc,
		itemSvc:       p.ItemSvc,
		analyticsSvc:  p.AnalyticsSvc,
		publicLimiter: p.PublicLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerPublicRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.APIKeyRequired())

	// -------- Items --------
	api.POST("/items", s.CreateItem)
	api.GET("/items", s.ListItems)
	api.GET("/items/:id", s.GetItemByID)
	api.GET("/items/:id/status", s.GetItemStatus)
	api.DELETE("/items/:id", s.DeleteItem)

	// -------- Analytics --------
	api.GET("/analytics/overview", s.AnalyticsOverview)
	api.GET("/analytics/timeseries", s.AnalyticsTimeSeries)
	api.GET("/analytics/time-of-day", s.AnalyticsTimeOfDay)
	api.GET("/analytics/ratings", s.AnalyticsRatings)
	api.GET("/analytics/questions", s.AnalyticsTopQuestions)
}

func (s *Server) registerPublicRoutes() {
	// Guide resolution for scanned codes.
	s.engine.GET("/g/:code", s.ResolveGuide)

	// Event recording from the guide page. Unauthenticated; throttled
	// per client address and code.
	public := s.engine.Group("/p", s.PublicRateLimit())
	public.POST("/scan", s.RecordScan)
	public.POST("/complete", s.RecordCompletion)
	public.POST("/question", s.RecordQuestion)
}

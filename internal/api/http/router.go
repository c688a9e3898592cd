package http

import (
	"github.com/EternisAI/silo-provisioner/internal/api/http/handler"
	"github.com/EternisAI/silo-provisioner/internal/api/http/middleware"
	"github.com/EternisAI/silo-provisioner/internal/metrics"
	"github.com/EternisAI/silo-provisioner/internal/results"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	Runner       handler.Runner
	Store        results.Store
	OpenSource   handler.SourceOpener
	DefaultInput string
}

func SetupRoute(engine *gin.Engine, cfg Config, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler(srvs.Store)
	engine.GET("/health", healthHandler.Check)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	runsHandler := handler.NewRunsHandler(srvs.Runner, srvs.Store, srvs.OpenSource, srvs.DefaultInput)
	api := engine.Group("/api/v1", middleware.APIKeyAuth(cfg.AdminAPIKey))
	{
		api.POST("/runs", runsHandler.Create)
		api.GET("/runs", runsHandler.List)
		api.GET("/runs/:id", runsHandler.Get)
	}
}

// Package server exposes the credit engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/credits/internal/config"
	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	"github.com/smallbiznis/credits/internal/subscription"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	credits   creditdomain.Service
	allocator *subscription.Allocator
	catalog   *subscription.PlanCatalogHolder
	log       *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Credits   creditdomain.Service
	Allocator *subscription.Allocator
	Catalog   *subscription.PlanCatalogHolder
	Log       *zap.Logger
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		credits:   p.Credits,
		allocator: p.Allocator,
		catalog:   p.Catalog,
		log:       p.Log.Named("http.server"),
	}

	s.registerAPIRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Credits --------
	api.POST("/credits/add", s.AddCredits)
	api.POST("/credits/deduct", s.DeductCredits)
	api.POST("/credits/reserve", s.ReserveCredits)
	api.POST("/reservations/:id/commit", s.CommitReservation)
	api.POST("/reservations/:id/release", s.ReleaseReservation)

	api.GET("/users/:userId/credits", s.GetUserCreditsInfo)
	api.GET("/users/:userId/credits/history", s.GetCreditHistory)
	api.GET("/users/:userId/credits/expiring", s.GetExpiringCredits)

	// -------- Plans & subscriptions --------
	api.GET("/plans", s.ListPlans)
	api.POST("/subscriptions", s.AssignPlan)
	api.GET("/subscriptions/:userId", s.GetSubscription)
	api.DELETE("/subscriptions/:userId", s.CancelPlan)
}

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

// Module wires the gin engine, route registration and the listener
// lifecycle.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

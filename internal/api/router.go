// Package api wires the CT query handlers into a gin HTTP server.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/ctapi/internal/api/handlers"
	"github.com/adamscao/ctapi/internal/api/middleware"
	"github.com/adamscao/ctapi/internal/config"
	"github.com/adamscao/ctapi/internal/metrics"
	"github.com/adamscao/ctapi/internal/query"
)

// healthTimeout bounds the store ping behind /health
const healthTimeout = 2 * time.Second

// HealthChecker reports whether the record store is reachable
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Dependencies are the collaborators the server routes to. Keys, Auditor
// and Health may be nil.
type Dependencies struct {
	Dispatcher *query.Dispatcher
	Keys       middleware.KeyStore
	Auditor    middleware.Auditor
	Health     HealthChecker
	Logger     *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	router     *gin.Engine
	config     *config.Config
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(metrics.Middleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := deps.Health.Healthy(ctx); err != nil {
				logger.Error("health check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unavailable",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	ctHandler := handlers.NewCTHandler(deps.Dispatcher, deps.Auditor, logger)

	v1 := router.Group(cfg.Server.BasePath)
	if cfg.RateLimit.Enabled {
		v1.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)))
	}
	if cfg.Auth.Enabled {
		v1.Use(middleware.APIKeyAuth(cfg.Auth.APIKeyHashes, deps.Keys, deps.Auditor, logger))
	}

	// Certificate transparency record queries
	ct := v1.Group("/ct")
	{
		ct.GET("/org", ctHandler.ByOrganization)
		ct.GET("/zone", ctHandler.ByZone)
		ct.GET("/common_name", ctHandler.ByCommonName)
		ct.GET("/ip", ctHandler.ByIP)
		ct.GET("/fingerprint/:fingerprint", ctHandler.ByFingerprint)
		ct.GET("/issuers", ctHandler.Issuers)
		ct.GET("/issuers/:issuer", ctHandler.ByIssuer)
		ct.GET("/id/:id", ctHandler.ByID)
		ct.GET("/download/:id", ctHandler.Download)
		ct.GET("/corp_certs", ctHandler.Corporate)
		ct.GET("/signature_algorithm", ctHandler.BySignatureAlgorithm)
		ct.GET("/corp_count", ctHandler.CorporateCount)
		ct.GET("/total_count", ctHandler.TotalCount)
	}

	return &Server{
		router: router,
		config: cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:         cfg.Server.ListenAddr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Router returns the underlying gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until it stops. It returns nil
// after a graceful Shutdown.
func (s *Server) Run() error {
	s.logger.Info("starting HTTP server", "addr", s.config.Server.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

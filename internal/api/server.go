package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/synapsedb/synapse/internal/consolidation"
	"github.com/synapsedb/synapse/internal/graph"
	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/memorystore"
	"github.com/synapsedb/synapse/internal/ratelimit"
	"github.com/synapsedb/synapse/pkg/config"
)

var log = logging.GetLogger("api")

// Server is the REST surface over the memory store, link graph, and
// consolidation engine. It carries no state of its own beyond routing and
// middleware; every handler delegates into the service layer.
type Server struct {
	router     *gin.Engine
	cfg        *config.Config
	mem        *memorystore.Service
	graph      *graph.Service
	cons       *consolidation.Service
	httpServer *http.Server
}

// NewServer builds a Server and wires its routes. cons may be nil — the
// consolidation/retention endpoints then respond 503, since those passes
// are opt-in (spec §9) and a deployment may not enable them.
func NewServer(cfg *config.Config, mem *memorystore.Service, graphSvc *graph.Service, cons *consolidation.Service) *Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.RestAPI.CORS {
		router.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
			MaxAge:          12 * time.Hour,
		}))
	}

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(&ratelimit.Config{
			Enabled: true,
			Global: ratelimit.LimitConfig{
				RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
				BurstSize:         cfg.RateLimit.BurstSize,
			},
		})
		router.Use(RateLimitMiddleware(limiter))
	}

	router.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	s := &Server{router: router, cfg: cfg, mem: mem, graph: graphSvc, cons: cons}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		v1.POST("/memories", s.createMemory)
		v1.GET("/memories", s.listMemories)
		v1.POST("/memories/search", s.searchMemories)
		v1.GET("/memories/:id", s.getMemory)
		v1.DELETE("/memories/:id", s.deleteMemory)
		v1.POST("/memories/:id/restore", s.restoreMemory)
		v1.POST("/memories/:id/access", s.accessMemory)
		v1.GET("/memories/:id/graph", s.memoryGraph)
		v1.GET("/memories/:id/centrality", s.memoryCentrality)

		v1.POST("/links", s.createLink)
		v1.DELETE("/links/:id", s.deleteLink)
		v1.GET("/graph/stats", s.graphStats)

		v1.POST("/consolidate", s.runConsolidate)
		v1.POST("/consolidate/:id/undo", s.undoConsolidate)
		v1.POST("/retention/run", s.runRetention)
	}
}

// Router exposes the underlying engine, for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// within shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.RestAPI.Host, s.cfg.RestAPI.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(stopCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	log.Info("stopping REST API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	SuccessResponse(c, "ok", gin.H{"status": "ok"})
}

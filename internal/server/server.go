package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/freshness"
	"github.com/ziadkadry99/memberrec/internal/ingest"
	"github.com/ziadkadry99/memberrec/internal/members"
	"github.com/ziadkadry99/memberrec/internal/rerank"
	"github.com/ziadkadry99/memberrec/internal/vectordb"
)

// Config holds server configuration.
type Config struct {
	Port           int
	AllowAll       bool // allow all CORS origins (dev mode)
	DefaultVersion string
}

// Deps are the components exposed over HTTP. Nil components leave their
// routes unmounted, except Store which is required.
type Deps struct {
	Store    members.Store
	Index    *vectordb.Index
	Importer *ingest.Importer
	Reranker *rerank.Reranker
	Pipeline *freshness.Pipeline
	Runs     *freshness.RunStore
	Hub      *freshness.Hub
	Logger   *zap.Logger
}

// Server is the member recommendation HTTP API.
type Server struct {
	cfg        Config
	deps       Deps
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server

	// runCtx outlives requests; refreshes started over HTTP use it.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

// New creates the server and builds its router.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.DefaultVersion == "" {
		cfg.DefaultVersion = string(freshness.V1)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger,
		runCtx:    runCtx,
		cancelRun: cancel,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", s.handleHealth)

	// Websockets are long-lived, so they sit outside the timeout group.
	if s.deps.Hub != nil {
		r.Get("/ws/refresh", freshness.StreamHandler(s.deps.Hub, s.logger))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))

		var extra []func(chi.Router)
		if s.deps.Importer != nil {
			extra = append(extra, ingest.Routes(s.deps.Importer))
		}
		var indexer members.Indexer
		if s.deps.Index != nil {
			indexer = s.deps.Index
		}
		members.RegisterRoutes(r, s.deps.Store, indexer, extra...)

		if s.deps.Reranker != nil {
			rerank.RegisterRoutes(r, s.deps.Reranker, s.cfg.DefaultVersion)
		}
		if s.deps.Pipeline != nil {
			freshness.RegisterRoutes(r, s.runCtx, s.deps.Pipeline, s.deps.Runs, nil, s.logger)
		}
	})

	return r
}

type healthResponse struct {
	Status      string   `json:"status"`
	Members     int      `json:"members"`
	Collections []string `json:"collections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Collections: []string{}}
	n, err := s.deps.Store.Count(r.Context())
	if err != nil {
		s.logger.Warn("health check: counting members", zap.Error(err))
		resp.Status = "degraded"
	}
	resp.Members = n
	if s.deps.Index != nil {
		resp.Collections = s.deps.Index.ListCollections()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port. It returns nil after a
// graceful Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("memberrec server listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and cancels refreshes started over HTTP.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelRun()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

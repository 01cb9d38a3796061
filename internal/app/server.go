package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/readstack-hq/readstack/internal/api/handlers"
	middleware "github.com/readstack-hq/readstack/internal/api/middlewares"
	"github.com/readstack-hq/readstack/internal/config"
	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/core/ingest"
	"github.com/readstack-hq/readstack/internal/core/retrieve"
	"github.com/readstack-hq/readstack/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, svc *services.BookService, obj core.ObjectClient, ingestor *ingest.Ingestor, proc *ingest.Processor, retr *retrieve.Retriever, log *zap.Logger) *Server {
	bookHandler := handlers.NewBookHandler(svc, obj, ingestor, proc, cfg, log)
	searchHandler := handlers.NewSearchHandler(svc, retr, log)
	contextHandler := handlers.NewContextHandler(svc, retr, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(middleware.JWT(cfg.JWTSecret))

			protected.Post("/books/upload", bookHandler.UploadBook)
			protected.Get("/books", bookHandler.GetBooks)
			protected.Get("/books/{bookID}", bookHandler.GetBook)
			protected.Post("/books/{bookID}/reprocess", bookHandler.ReprocessBook)
			protected.Post("/books/{bookID}/search", searchHandler.Search)
			protected.Get("/books/{bookID}/context", contextHandler.ContextForProgress)
			protected.Post("/books/{bookID}/context/question", contextHandler.ContextForQuestion)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Fatal("server error", zap.Error(err))
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Package httpapi exposes the engine over HTTP: the same Database and
// Executor the REPL drives, reached through a small JSON API instead of a
// terminal loop.
//
// EDUCATIONAL NOTES:
// ------------------
// This is a pure external collaborator sitting on top of the engine
// boundary (Database.Execute-equivalent via Executor) — no storage or SQL
// invariant lives in this package. The middleware stack (request ID, real
// IP, panic recovery, timeout) mirrors what any chi-based Go service
// carries at the edge.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oursql/oursql/internal/applog"
	"github.com/oursql/oursql/internal/database"
	"github.com/oursql/oursql/internal/sql/executor"
)

// Server is the HTTP surface over one Database.
type Server struct {
	router *chi.Mux
	db     *database.Database
	exec   *executor.Executor
}

// New builds a Server over db, sharing one Executor across every request.
func New(db *database.Database) *Server {
	s := &Server{
		router: chi.NewRouter(),
		db:     db,
		exec:   executor.New(db),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/query", s.handleQuery)
	s.router.Get("/tables", s.handleListTables)
	s.router.Get("/tables/{name}/schema", s.handleTableSchema)
}

// requestLogger logs one structured line per request via applog, in place
// of chi's stdlib-log middleware.Logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		applog.Logger().Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Router returns the underlying handler, chiefly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run starts the HTTP server on addr and blocks until SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	errChan := make(chan error, 1)

	go func() {
		applog.Logger().Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-done:
		applog.Logger().Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	applog.Logger().Info("http server stopped")
	return nil
}

// Package server exposes the reconciliation engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hsiehdog/travel-coordination-back/internal/patch"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

// UserHeader carries the caller's user id. Trips are only visible to the
// user that created them.
const UserHeader = "X-User-ID"

// requestTimeout bounds one request. An ingest makes up to three oracle
// calls, each bounded by the oracle timeout.
const requestTimeout = 5 * time.Minute

// Config holds HTTP settings.
type Config struct {
	CORSOrigins []string
}

// Server routes HTTP requests to the store and engine.
type Server struct {
	cfg      Config
	store    store.Store
	engine   *patch.Engine
	validate *validator.Validate
	router   chi.Router
}

// New creates a Server. The engine and store must share the same database.
func New(cfg Config, st store.Store, eng *patch.Engine) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		engine:   eng,
		validate: newValidator(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/trips", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/", s.handleCreateTrip)

		r.Route("/{tripID}", func(r chi.Router) {
			r.Use(s.tripOwner)
			r.Get("/", s.handleGetTrip)
			r.Get("/items", s.handleListItems)
			r.Post("/items/{itemID}/confirm", s.handleConfirmItem)
			r.Post("/ingest", s.handleIngest)
			r.Get("/pending", s.handleListPending)
			r.Post("/pending/{pendingID}/resolve", s.handleResolvePending)
			r.Delete("/pending/{pendingID}", s.handleDiscardPending)
			r.Get("/runs", s.handleListRuns)
		})
	})

	return r
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

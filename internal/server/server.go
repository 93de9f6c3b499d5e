// Package server exposes the CRM over HTTP: firm search, activity
// logging, the daily agenda, and the lead suggestion queue.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/OancaAdrian/CRM/internal/activity"
	"github.com/OancaAdrian/CRM/internal/agenda"
	"github.com/OancaAdrian/CRM/internal/config"
	"github.com/OancaAdrian/CRM/internal/firm"
	"github.com/OancaAdrian/CRM/internal/store"
	"github.com/OancaAdrian/CRM/internal/suggest"
)

// Server wires the domain services behind the HTTP API.
type Server struct {
	cfg        config.ServerConfig
	store      store.Store
	firms      *firm.Service
	activities *activity.Service
	agenda     *agenda.Service
	ranker     *suggest.Ranker
}

// New builds a Server from the loaded config and an open store.
func New(cfg config.Config, st store.Store) *Server {
	ranker := suggest.NewRanker(st, cfg.Suggest.Limit, cfg.Suggest.ExcludeRegion)
	return &Server{
		cfg:        cfg.Server,
		store:      st,
		firms:      firm.NewService(st),
		activities: activity.NewService(st),
		agenda:     agenda.NewService(st, ranker),
		ranker:     ranker,
	}
}

// Router assembles the route tree with the middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Api-Key"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimit > 0 {
		r.Use(rateLimit(s.cfg.RateLimit, s.cfg.RateBurst))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiKey(s.cfg.APIKey))

		r.Get("/firme", s.handleSearchFirms)
		r.Get("/firme/{cui}", s.handleGetFirm)
		r.Get("/firme/{cui}/activitati", s.handleListActivities)

		r.Post("/activitati", s.handleCreateActivity)
		r.Post("/activitati/{id}/complete", s.handleCompleteActivity)

		r.Get("/agenda", s.handleAgenda)

		r.Get("/sugestii", s.handleSuggestions)
		r.Post("/sugestii/rebuild", s.handleRebuildSuggestions)
		r.Post("/sugestii/folosite", s.handleMarkSuggestionsUsed)

		r.Post("/import/caen", s.handleImportCAEN)
		r.Post("/import/activitati/{cui}", s.handleImportActivities)
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then
// drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	zap.L().Info("http server listening", zap.Int("port", s.cfg.Port))

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	zap.L().Info("http server stopped")
	return nil
}

// Package server exposes the sponsor store over HTTP: status, the enabled
// switch, manual refresh, name search, one-shot page annotation and a
// websocket feed of store changes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"sponsorcheck/internal/config"
	"sponsorcheck/internal/registry"
	"sponsorcheck/internal/scan"
	"sponsorcheck/internal/storage"
)

const (
	msgToggleState     = "toggleState"
	msgSponsorsUpdated = "sponsorsUpdated"
)

type toggleMessage struct {
	Type      string `json:"type"`
	IsEnabled bool   `json:"isEnabled"`
}

type sponsorsMessage struct {
	Type        string     `json:"type"`
	TotalCount  int        `json:"totalCount"`
	LastUpdated *time.Time `json:"lastUpdated"`
}

type Refresher interface {
	ForceRefresh(ctx context.Context) bool
}

type Server struct {
	db        *storage.DB
	refresher Refresher
	scanner   *scan.Scanner
	reg       *registry.Registry
	hub       *Hub
	upgrader  websocket.Upgrader
	cfg       config.Config
	log       *zap.Logger
}

func New(db *storage.DB, refresher Refresher, scanner *scan.Scanner, cfg config.Config) *Server {
	return &Server{
		db:        db,
		refresher: refresher,
		scanner:   scanner,
		reg:       registry.New(),
		hub:       NewHub(),
		upgrader:  newUpgrader(cfg.CORSOrigins),
		cfg:       cfg,
		log:       zap.L().Named("server"),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Put("/enabled", s.handleSetEnabled)
	r.Post("/refresh", s.handleRefresh)
	r.Get("/search", s.handleSearch)
	r.Get("/check", s.handleCheck)
	r.Post("/annotate", s.handleAnnotate)
	r.Get("/ws", s.handleWS)
	return r
}

// LoadRegistry fills the annotation registry from the store.
func (s *Server) LoadRegistry(ctx context.Context) error {
	keys, err := s.db.ListSponsorKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		s.reg.Replace(keys)
	}
	return nil
}

// follow consumes store changes until ctx is done, reloading the registry and
// pushing toggleState and sponsorsUpdated messages to websocket clients.
func (s *Server) follow(ctx context.Context, sub *storage.Subscription) error {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.C:
			if !ok {
				return nil
			}
		}

		for _, key := range sub.Drain() {
			if err := s.publish(ctx, key); err != nil {
				s.log.Warn("publish store change", zap.String("key", key), zap.Error(err))
			}
		}
	}
}

func (s *Server) publish(ctx context.Context, key string) error {
	switch key {
	case storage.KeyEnabled:
		enabled, err := s.db.Enabled(ctx)
		if err != nil {
			return err
		}
		s.hub.BroadcastJSON(toggleMessage{Type: msgToggleState, IsEnabled: enabled})
	case storage.KeySponsors:
		if err := s.LoadRegistry(ctx); err != nil {
			return err
		}
		st, err := s.db.Status(ctx)
		if err != nil {
			return err
		}
		s.hub.BroadcastJSON(sponsorsMessage{Type: msgSponsorsUpdated, TotalCount: st.TotalCount, LastUpdated: st.LastUpdated})
	}
	return nil
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.LoadRegistry(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sub := s.db.Subscribe()
	go func() { _ = s.follow(ctx, sub) }()
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		s.hub.Close()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const healthPath = "/healthz"

// Server wires the registry, dispatcher, and manager loop behind one HTTP
// upgrade route.
type Server struct {
	cfg      *Config
	registry *Registry
	manager  *Manager
	upgrader websocket.Upgrader
	origins  map[string]struct{}
}

func NewServer(cfg *Config) *Server {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry, NewLogObserver(log.Logger))
	s := &Server{
		cfg:      cfg,
		registry: registry,
		manager:  NewManager(registry, dispatcher, cfg.ClosePolicy),
		origins:  make(map[string]struct{}, len(cfg.AllowedOrigins)),
	}
	for _, o := range cfg.AllowedOrigins {
		if normalized, ok := normalizeOrigin(o); ok {
			s.origins[normalized] = struct{}{}
		}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, s.healthHandler)
	mux.HandleFunc(s.cfg.Path, s.wsHandler)
	return mux
}

// Run serves on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.manager.Run(ctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Str("path", s.cfg.Path).
			Str("close_policy", string(s.cfg.ClosePolicy)).Msg("ws server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.cfg.SendBuffer)
	if !s.manager.connect(client) {
		_ = conn.Close()
		return
	}

	timings := s.cfg.timings()
	go client.write(timings)
	go client.read(s.manager, timings)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.registry.Len(),
	})
}

// checkOrigin allows every origin when none are configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	normalized, ok := normalizeOrigin(origin)
	if ok {
		if _, allowed := s.origins[normalized]; allowed {
			return true
		}
	}
	log.Warn().Str("origin", origin).Msg("blocked websocket connection from disallowed origin")
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

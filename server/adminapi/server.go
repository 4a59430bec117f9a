// Package adminapi exposes the operational HTTP surface: health,
// Prometheus metrics and a few read-only status endpoints, protected
// by JWT bearer tokens.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rovermail/rover/config"
	"github.com/rovermail/rover/logger"
	"github.com/rovermail/rover/midb"
	serverPkg "github.com/rovermail/rover/server"
)

type Server struct {
	addr      string
	jwtSecret []byte
	client    midb.Client
	stats     serverPkg.ConnStats
	httpSrv   *http.Server
	started   time.Time
}

func New(cfg config.AdminAPIConfig, client midb.Client, stats serverPkg.ConnStats) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("adminapi: jwt_secret is required when the admin API is enabled")
	}
	s := &Server{
		addr:      cfg.Listen,
		jwtSecret: []byte(cfg.JWTSecret),
		client:    client,
		stats:     stats,
		started:   time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:         cfg.Listen,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Start(errChan chan error) {
	logger.Info("admin API listening", "addr", s.addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- fmt.Errorf("adminapi: %w", err)
	}
}

func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpSrv.Shutdown(ctx)
}

// authMiddleware validates the Authorization bearer token. Only HMAC
// signatures are accepted; anything else is a token forgery attempt.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, isHMAC := t.Method.(*jwt.SigningMethodHMAC); !isHMAC {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			logger.Warn("admin API auth rejected", "remote", r.RemoteAddr, "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// The backend is the only hard dependency worth probing.
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	httpCode := http.StatusOK
	if _, err := s.client.EnumFolders(ctx, "."); midb.IsTransport(err) {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"uptime": time.Since(s.started).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"connections":               s.stats.TotalConnections(),
		"authenticated_connections": s.stats.AuthenticatedConnections(),
		"uptime":                    time.Since(s.started).String(),
	})
}

// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/logging"
	"github.com/pario-ai/backstop/pkg/models"
	"github.com/pario-ai/backstop/pkg/orchestrator"
	"github.com/pario-ai/backstop/pkg/vault"
)

const (
	maxBodyBytes = 64 << 10
	// maxClients bounds the per-client limiter table.
	maxClients = 10000
)

// Server is the Backstop HTTP API.
type Server struct {
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	router chi.Router

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Server.
func New(cfg *config.Config, orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		orch:     orch,
		logger:   logging.OrNop(logger),
		limiters: make(map[string]*rate.Limiter),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/requests", s.handleRequest)
		r.Get("/quota/{providerID}", s.handleQuota)
		r.Get("/mode", s.handleMode)
		r.Put("/credentials/{providerID}", s.handleSetCredential)
		r.Delete("/credentials", s.handleClearCredentials)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("backstop listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

type requestBody struct {
	models.Request
	NoCache bool   `json:"no_cache"`
	TTL     string `json:"ttl"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := orchestrator.Options{NoCache: body.NoCache}
	if body.TTL != "" {
		ttl, err := time.ParseDuration(body.TTL)
		if err != nil || ttl < 0 {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid ttl %q", body.TTL))
			return
		}
		opts.TTL = ttl
	}
	if body.RequestID == "" {
		body.RequestID = middleware.GetReqID(r.Context())
	}

	res := s.orch.Request(r.Context(), body.Request, opts)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

type quotaResponse struct {
	ProviderID string             `json:"providerId"`
	Remaining  models.Remaining   `json:"remaining"`
	Usage      models.UsageRecord `json:"usage"`
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "providerID")
	rem, err := s.orch.RemainingQuota(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	usage, err := s.orch.Usage(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quotaResponse{ProviderID: id, Remaining: rem, Usage: usage})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":  s.orch.CurrentMode(r.Context()),
		"cache": s.orch.CacheStats(),
	})
}

type credentialBody struct {
	Key string `json:"key"`
}

func (s *Server) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "providerID")

	var body credentialBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.orch.SetCredential(r.Context(), id, body.Key)
	switch {
	case errors.Is(err, orchestrator.ErrUnknownProvider):
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, vault.ErrInvalidKey), errors.Is(err, vault.ErrPlaceholderKey):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.logger.Error("store credential", zap.String("provider", id), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to store credential")
		return
	}

	masked, _ := s.orch.MaskedCredential(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]string{"providerId": id, "key": masked})
}

func (s *Server) handleClearCredentials(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ClearCredentials(r.Context()); err != nil {
		s.logger.Error("clear credentials", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to clear credentials")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rateLimit applies a token bucket per client address.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.RatePerMinute > 0 && !s.limiter(clientAddr(r)).Allow() {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiter(client string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.limiters[client]; ok {
		return l
	}
	if len(s.limiters) >= maxClients {
		s.limiters = make(map[string]*rate.Limiter)
	}
	perMin := s.cfg.Server.RatePerMinute
	l := rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin)
	s.limiters[client] = l
	return l
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]errorBody{
		"error": {Message: message, Type: "backstop_error", Code: code},
	})
}

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/delivery"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/storage"
)

// Server is the inbound webhook HTTP server.
type Server struct {
	config       Config
	registry     *auth.Registry
	deliverer    Deliverer
	store        MessageLister
	hub          *events.Hub
	logger       *slog.Logger
	server       *http.Server
	startedAt    time.Time
	integrations map[string]Integration
}

// New creates a new webhook server instance.
func New(config Config, registry *auth.Registry, deliverer Deliverer, store MessageLister, hub *events.Hub, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	return &Server{
		config:       config,
		registry:     registry,
		deliverer:    deliverer,
		store:        store,
		hub:          hub,
		logger:       logger,
		startedAt:    time.Now(),
		integrations: BuiltinIntegrations(),
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "integrations", len(s.integrations))

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Everything under /api/v1 requires a bot API key.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/external/{integration}", s.handleExternal)
		r.Get("/messages", s.handleMessages)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests (excludes payload bodies).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// authMiddleware resolves the caller's API key to a bot identity before any
// handler body runs. Failures are a generic 401.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := auth.ExtractAPIKey(r)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, CodeInvalidAPIKey, err.Error())
			return
		}

		bot, ok := s.registry.Authenticate(key)
		if !ok {
			s.respondError(w, http.StatusUnauthorized, CodeInvalidAPIKey, "invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithBot(r.Context(), bot)))
	})
}

// handleExternal handles POST /api/v1/external/{integration}.
func (s *Server) handleExternal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	integration, ok := s.integrations[chi.URLParam(r, "integration")]
	if !ok {
		s.respondError(w, http.StatusNotFound, CodeUnknownIntegration, "unknown integration")
		return
	}

	bot, ok := auth.BotFromContext(ctx)
	if !ok {
		// authMiddleware always runs first; reaching here is a wiring bug.
		s.respondError(w, http.StatusInternalServerError, CodeInternalError, "no authenticated caller")
		return
	}

	// Enforce body size limit
	limitedReader := io.LimitReader(r.Body, s.config.MaxBodySize+1)
	payload, err := io.ReadAll(limitedReader)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, CodeInternalError, "failed to read request body")
		return
	}
	if int64(len(payload)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, CodeRequestTooLarge, "payload too large")
		return
	}

	body, err := integration.Parse(payload)
	if err != nil {
		var perr *PayloadError
		if errors.As(err, &perr) {
			s.logger.Warn("malformed webhook payload",
				"integration", integration.Name(),
				"bot", bot.Name,
				"error", perr.Error(),
			)
			s.respondError(w, http.StatusBadRequest, CodeBadEventPayload, perr.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, CodeInternalError, "failed to parse payload")
		return
	}

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = integration.DefaultTopic()
	}

	receipt, err := s.deliverer.Deliver(ctx, bot, topic, body)
	if err != nil {
		s.respondDeliveryError(w, integration.Name(), bot.Name, err)
		return
	}

	s.logger.Info("webhook delivered",
		"integration", integration.Name(),
		"bot", bot.Name,
		"stream", receipt.Stream,
		"topic", receipt.Topic,
		"message_id", receipt.MessageID,
	)

	s.respondJSON(w, http.StatusOK, SuccessResponse{Result: "success", Msg: ""})
}

// respondDeliveryError maps delivery failures onto the error envelope.
// Failures are propagated as-is; no retry, no compensation.
func (s *Server) respondDeliveryError(w http.ResponseWriter, integration, bot string, err error) {
	s.logger.Warn("delivery failed",
		"integration", integration,
		"bot", bot,
		"error", err,
	)

	switch {
	case errors.Is(err, delivery.ErrRateLimited):
		s.respondError(w, http.StatusTooManyRequests, CodeRateLimited, err.Error())
	case errors.Is(err, delivery.ErrNoDestination):
		s.respondError(w, http.StatusBadRequest, CodeDeliveryFailed, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, CodeDeliveryFailed, "message delivery failed")
	}
}

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("failed to count messages", "error", err)
		s.respondError(w, http.StatusInternalServerError, CodeInternalError, "failed to count messages")
		return
	}

	s.respondJSON(w, http.StatusOK, HealthzResponse{
		Status:            "ok",
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		MessagesDelivered: count,
		BotsLoaded:        s.registry.Len(),
	})
}

// handleMessages handles GET /api/v1/messages?limit=N.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, CodeBadEventPayload, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list messages", "error", err)
		s.respondError(w, http.StatusInternalServerError, CodeInternalError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []storage.Message{}
	}

	s.respondJSON(w, http.StatusOK, MessagesResponse{
		Result:   "success",
		Msg:      "",
		Messages: msgs,
	})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends a structured JSON error envelope.
func (s *Server) respondError(w http.ResponseWriter, status int, code, msg string) {
	s.respondJSON(w, status, ErrorResponse{Result: "error", Msg: msg, Code: code})
}

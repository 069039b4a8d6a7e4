// ABOUTME: Server orchestrator that wires all gateway components together
// ABOUTME: Manages the HTTP server, websocket hub, and store lifecycle

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bosar/bosar-gateway/internal/auth"
	"github.com/bosar/bosar-gateway/internal/chat"
	"github.com/bosar/bosar-gateway/internal/config"
	"github.com/bosar/bosar-gateway/internal/conversation"
	"github.com/bosar/bosar-gateway/internal/escalation"
	"github.com/bosar/bosar-gateway/internal/httpapi"
	"github.com/bosar/bosar-gateway/internal/hub"
	"github.com/bosar/bosar-gateway/internal/knowledge"
	"github.com/bosar/bosar-gateway/internal/openai"
	"github.com/bosar/bosar-gateway/internal/responder"
	"github.com/bosar/bosar-gateway/internal/store"
)

// Server orchestrates the bosar-gateway components. It owns the HTTP
// server that carries both the REST API and the websocket endpoint, the
// connection hub, and the store.
type Server struct {
	config     *config.Config
	store      store.Store
	hub        *hub.Hub
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("BOSAR_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Server instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	connHub := hub.New(logger, cfg.Chat.HeartbeatInterval)
	convService := conversation.New(s, logger)

	aiClient := openai.NewClient(cfg.OpenAI, logger)
	if !aiClient.Available() {
		logger.Warn("no openai api key configured - automated replies and retrieval are disabled")
	}

	engine := knowledge.NewEngine(s, aiClient, logger)
	resp := responder.New(s, aiClient, engine, responder.Options{
		HistoryLimit:       cfg.Chat.HistoryLimit,
		RetrievalLimit:     cfg.Chat.RetrievalLimit,
		RetrievalThreshold: cfg.Chat.RetrievalThreshold,
	}, logger)

	escalations := escalation.New(convService, s, escalation.NewFirstAvailablePolicy(s), connHub, logger)
	pipeline := chat.NewPipeline(s, convService, connHub, resp, escalations, cfg.Escalation.ExtraKeywords, logger)
	socket := chat.NewHandler(connHub, pipeline, convService, s, verifier, logger)

	api := httpapi.NewServer(s, convService, escalations, engine, verifier, httpapi.Options{
		TokenTTL:           cfg.Auth.TokenTTL,
		RetrievalLimit:     cfg.Chat.RetrievalLimit,
		RetrievalThreshold: cfg.Chat.RetrievalThreshold,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/chat", socket)
	api.RegisterRoutes(mux)

	return &Server{
		config: cfg,
		store:  s,
		hub:    connHub,
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "server"),
	}, nil
}

// Run starts the server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	// heartbeat sweeper stops when the run context is canceled
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the run context is
// already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

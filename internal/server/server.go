// ABOUTME: Server orchestrator that wires the broker, device channel, and HTTP API.
// ABOUTME: Manages store, push sender, and discovery lifecycle around one HTTP server.

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/2389/handoff-bridge/internal/api"
	"github.com/2389/handoff-bridge/internal/auth"
	"github.com/2389/handoff-bridge/internal/broker"
	"github.com/2389/handoff-bridge/internal/channel"
	"github.com/2389/handoff-bridge/internal/config"
	"github.com/2389/handoff-bridge/internal/discovery"
	"github.com/2389/handoff-bridge/internal/export"
	"github.com/2389/handoff-bridge/internal/push"
	"github.com/2389/handoff-bridge/internal/store"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Server orchestrates the handoff-bridge components.
type Server struct {
	config     *config.Config
	broker     *broker.Broker
	store      *store.DeviceStore
	tokens     *auth.DeviceTokens
	httpServer *http.Server
	advertiser *discovery.Advertiser
	logger     *slog.Logger
}

// New creates a Server instance with all components wired but nothing listening.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	deviceStore, err := store.NewDeviceStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing device store: %w", err)
	}

	tokens, err := auth.NewDeviceTokens([]byte(cfg.Auth.PairingSecret), cfg.Auth.DeviceTokenTTL)
	if err != nil {
		_ = deviceStore.Close()
		return nil, fmt.Errorf("creating device token signer: %w", err)
	}

	var pushSender broker.PushSender
	if cfg.Push.Enabled {
		pushSender = push.NewExpoSender(cfg.Push.Endpoint, logger)
	}

	b := broker.New(broker.Options{
		DefaultTimeout:   cfg.Broker.DefaultTimeout,
		LivenessInterval: cfg.Broker.LivenessInterval,
		GracePeriod:      cfg.Broker.GracePeriod,
		Push:             pushSender,
		Directory:        deviceStore,
		Logger:           logger,
	})

	// Known push addresses survive restarts so offline devices stay reachable.
	seedCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	addrs, err := deviceStore.PushAddresses(seedCtx)
	cancel()
	if err != nil {
		logger.Warn("loading stored push addresses failed", "error", err)
	} else {
		b.SeedPushAddresses(addrs)
	}

	var exporter api.Exporter
	if cfg.Export.Dir != "" {
		exporter = export.NewWriter(cfg.Export.Dir, cfg.Export.HTML, logger)
	}

	r := mux.NewRouter()
	r.Handle("/ws/device", channel.NewHandler(b, tokens, logger))
	api.New(b, exporter, logger).RegisterRoutes(r, cfg.Auth.APIToken)

	srv := &Server{
		config: cfg,
		broker: b,
		store:  deviceStore,
		tokens: tokens,
		logger: logger.With("component", "server"),
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return srv, nil
}

// Tokens exposes the pairing token signer for the pair command.
func (s *Server) Tokens() *auth.DeviceTokens {
	return s.tokens
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	if s.config.Discovery.Enabled {
		adv, err := discovery.Start(s.config.Discovery.Instance, ln.Addr().String(), Version, s.logger)
		if err != nil {
			s.logger.Warn("mdns advertisement failed, continuing without it", "error", err)
		} else {
			s.advertiser = adv
		}
	}

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
// Uses context.Background() intentionally since the run context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops all components and releases resources. Pending input
// requests are failed fast so agents do not hang on a dead server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.advertiser != nil {
		s.advertiser.Stop()
	}

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	s.broker.Shutdown()

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

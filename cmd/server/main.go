// Evacuation dialogue simulator server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/evac-dialogue/internal/agent"
	"github.com/ashureev/evac-dialogue/internal/api"
	"github.com/ashureev/evac-dialogue/internal/bootstrap"
	"github.com/ashureev/evac-dialogue/internal/config"
	"github.com/ashureev/evac-dialogue/internal/conversation"
	"github.com/ashureev/evac-dialogue/internal/health"
	"github.com/ashureev/evac-dialogue/internal/identity"
	"github.com/ashureev/evac-dialogue/internal/middleware"
	"github.com/ashureev/evac-dialogue/internal/store"
	"github.com/ashureev/evac-dialogue/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	core, err := bootstrap.Build(ctx, cfg, repo, logger)
	if err != nil {
		return err
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
		MaxSizeMB:     cfg.ConversationLog.MaxSizeMB,
		MaxBackups:    cfg.ConversationLog.MaxBackups,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}

	// Initialize handlers.
	streams := agent.NewStreamManager()
	defer streams.CloseAll()

	chatHandler := agent.NewHandler(core.Orchestrator, core.Personas, conversationLogger, agent.HandlerConfig{
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})
	// Close also drains the conversation logger.
	defer chatHandler.Close()
	autoHandler := agent.NewAutoStreamHandler(core.Orchestrator, core.Personas, streams, conversationLogger, cfg.AllowedOrigins, cfg.IsDevelopment())

	baseHandler := api.NewHandler(repo, core.Sessions, streams, core.Tokens)
	sessionHandler := api.NewSessionHandler(baseHandler, cfg.HistoryWindow)
	healthHandler := api.NewHealthHandler(repo, core.LLM)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware)

	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)
	sessionHandler.RegisterRoutes(r)
	r.Get("/ws/auto", autoHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Auto streams hold the connection open, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	var grpcLis net.Listener
	if cfg.GRPCPort != "" {
		grpcLis, err = net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc health: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		streams.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if grpcLis != nil {
		healthServer := health.NewServer(core.LLM, health.DefaultPollInterval, logger)
		lis := grpcLis
		g.Go(func() error {
			slog.Info("gRPC health server listening", "addr", lis.Addr().String())
			return healthServer.Serve(gctx, lis)
		})
	}

	if cfg.SessionTTL > 0 {
		done := conversation.StartTTLWorker(gctx, core.Sessions, cfg.SessionTTL, 0, func(_ context.Context, ids []string) {
			streams.CloseExpired(ids)
			for _, id := range ids {
				core.Tokens.Forget(id)
			}
		})
		g.Go(func() error {
			<-done
			return nil
		})
	}

	if cfg.ArchiveRetention > 0 {
		done := store.StartRetentionWorker(gctx, repo, cfg.ArchiveRetention, 0)
		g.Go(func() error {
			<-done
			return nil
		})
	}

	return g.Wait()
}

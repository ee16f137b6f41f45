package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vedran77/pulsechat/internal/config"
	"github.com/vedran77/pulsechat/internal/database"
	"github.com/vedran77/pulsechat/internal/delivery"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/logger"
	"github.com/vedran77/pulsechat/internal/metrics"
	"github.com/vedran77/pulsechat/internal/presence"
	"github.com/vedran77/pulsechat/internal/repository"
	"github.com/vedran77/pulsechat/internal/repository/memory"
	postgresrepo "github.com/vedran77/pulsechat/internal/repository/postgres"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/store"
	"github.com/vedran77/pulsechat/internal/transport/http/handlers"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/internal/transport/ws"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("server_exited", "error", err)
		os.Exit(1)
	}
}

type repositories struct {
	convs repository.ConversationRepository
	msgs  repository.MessageRepository
	dir   repository.Directory
	close func()
}

func openRepositories(ctx context.Context, cfg *config.Config, log *slog.Logger) (*repositories, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		db := memory.NewDB()
		dir := seedDirectory(cfg.SeedUsers)
		log.Warn("using in-memory store, data is lost on restart", "seeded_users", len(cfg.SeedUsers))
		return &repositories{
			convs: memory.NewConversationRepo(db),
			msgs:  memory.NewMessageRepo(db),
			dir:   dir,
			close: func() {},
		}, nil

	case config.StoreDriverPostgres:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)
		return postgresRepositories(pool), nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// seedDirectory registers every seed user and makes them all mutual friends.
func seedDirectory(users []config.SeedUser) *memory.Directory {
	dir := memory.NewDirectory()
	for i, u := range users {
		dir.AddProfile(domain.ProfileRef{ID: u.ID, DisplayName: u.DisplayName})
		for _, other := range users[:i] {
			dir.Befriend(u.ID, other.ID)
		}
	}
	return dir
}

func postgresRepositories(pool *pgxpool.Pool) *repositories {
	return &repositories{
		convs: postgresrepo.NewConversationRepo(pool),
		msgs:  postgresrepo.NewMessageRepo(pool),
		dir:   postgresrepo.NewDirectoryRepo(pool),
		close: pool.Close,
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repos.close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Core
	st := store.New(repos.convs, repos.msgs, repos.dir, m, log, store.WithRetryPolicy(store.RetryPolicy{
		Initial:     cfg.PersistRetryInitial,
		MaxElapsed:  cfg.PersistRetryMaxElapsed,
		MaxAttempts: uint64(cfg.PersistRetryMaxAttempts),
	}))
	registry := presence.NewRegistry(cfg.PresenceShards)
	engine := delivery.NewEngine(st, registry, m, log)
	chat := service.NewChatService(st, repos.dir, engine, log)
	gateway := ws.NewGateway(chat, engine, registry, m, log, ws.Config{
		OperationTimeout: cfg.OperationTimeout,
		TypingRatePerSec: cfg.TypingRatePerSec,
		TypingBurst:      cfg.TypingBurst,
		SendBuffer:       cfg.WSSendBuffer,
	})

	mux := newRouter(cfg, log, chat, gateway, reg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           middleware.CORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "connections", registry.Stats().Connections)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var result *multierror.Error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
		}
		return result.ErrorOrNil()
	})

	return g.Wait()
}

func newRouter(cfg *config.Config, log *slog.Logger, chat *service.ChatService, gateway *ws.Gateway, reg *prometheus.Registry) *http.ServeMux {
	convHandler := handlers.NewConversationHandler(chat, log)
	msgHandler := handlers.NewMessageHandler(chat, log)

	// Auth middleware
	auth := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /ws", ws.ServeWS(gateway, cfg.JWTSecret))

	// Protected - Conversations
	mux.Handle("POST /api/v1/conversations/direct", auth(http.HandlerFunc(convHandler.CreateDirect)))
	mux.Handle("POST /api/v1/conversations/groups", auth(http.HandlerFunc(convHandler.CreateGroup)))
	mux.Handle("GET /api/v1/conversations", auth(http.HandlerFunc(convHandler.List)))
	mux.Handle("GET /api/v1/conversations/{id}", auth(http.HandlerFunc(convHandler.Get)))
	mux.Handle("PATCH /api/v1/conversations/{id}", auth(http.HandlerFunc(convHandler.Update)))
	mux.Handle("DELETE /api/v1/conversations/{id}", auth(http.HandlerFunc(convHandler.Delete)))
	mux.Handle("POST /api/v1/conversations/{id}/read", auth(http.HandlerFunc(convHandler.MarkRead)))

	// Protected - Members and admins
	mux.Handle("POST /api/v1/conversations/{id}/members", auth(http.HandlerFunc(convHandler.AddMember)))
	mux.Handle("DELETE /api/v1/conversations/{id}/members/{uid}", auth(http.HandlerFunc(convHandler.RemoveMember)))
	mux.Handle("POST /api/v1/conversations/{id}/admins", auth(http.HandlerFunc(convHandler.AddAdmin)))
	mux.Handle("DELETE /api/v1/conversations/{id}/admins/{uid}", auth(http.HandlerFunc(convHandler.RemoveAdmin)))

	// Protected - Messages
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(msgHandler.List)))
	mux.Handle("POST /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(msgHandler.Send)))
	mux.Handle("DELETE /api/v1/messages/{id}", auth(http.HandlerFunc(msgHandler.Delete)))

	return mux
}

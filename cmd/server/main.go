// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/courts/internal/auth"
	"github.com/jason-s-yu/courts/internal/cache"
	"github.com/jason-s-yu/courts/internal/config"
	"github.com/jason-s-yu/courts/internal/database"
	"github.com/jason-s-yu/courts/internal/game"
	"github.com/jason-s-yu/courts/internal/handlers"
	"github.com/jason-s-yu/courts/internal/middleware"
	"github.com/jason-s-yu/courts/internal/storage/memory"
	"github.com/jason-s-yu/courts/internal/storage/sqlite"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ttl, _ := cfg.TokenTTL() // checked by config.Load
	signer, err := newSigner(cfg, ttl, logger)
	if err != nil {
		logger.WithError(err).Fatal("signer")
	}

	opts := handlers.ServerOptions{
		Signer:         signer,
		Logger:         logger,
		TokenTTL:       ttl,
		OriginPatterns: originPatterns(cfg.AllowedOrigins),
	}
	opts.Rules = game.NewHouseRules()
	opts.Rules.StartingHP = cfg.StartingHP
	opts.Rules.AutoMoveDelay = cfg.AutoMoveDelay

	closeStorage, err := wireStorage(ctx, cfg, &opts, logger)
	if err != nil {
		logger.WithError(err).Fatal("storage")
	}
	defer closeStorage()

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Fatal("redis")
		}
		defer rdb.Close()
		opts.Publisher = cache.NewPublisher(rdb, cfg.HistorianQueueName)
		logger.Infof("publishing game actions to %s", cfg.HistorianQueueName)
	}

	srv := handlers.NewGameServer(opts)

	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Auth-Token", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/", srv.Routes())

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("http shutdown")
		}
	}()

	logger.Infof("Running on %s (storage: %s)", httpServer.Addr, cfg.StorageDriver)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server exited")
	}
	logger.Info("server shutdown complete")
}

func newSigner(cfg config.Config, ttl time.Duration, logger *logrus.Logger) (*auth.Signer, error) {
	if cfg.PrivateKeyPath != "" && cfg.PublicKeyPath != "" {
		return auth.NewSignerFromFiles(cfg.PrivateKeyPath, cfg.PublicKeyPath, ttl)
	}
	if cfg.IsProduction() {
		logger.Warn("JWT key paths not set, tokens will not survive a restart")
	}
	return auth.NewSigner(ttl)
}

// wireStorage fills in the user, state and result stores for the configured driver.
// SQLite only keeps game state; accounts live in memory alongside it.
func wireStorage(ctx context.Context, cfg config.Config, opts *handlers.ServerOptions, logger *logrus.Logger) (func(), error) {
	mem := memory.NewStore()
	opts.Users, opts.States, opts.Results = mem, mem, mem

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := database.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		opts.Users, opts.States, opts.Results = store, store, store
		return store.Close, nil
	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		opts.States = store
		logger.Warn("sqlite storage keeps accounts in memory only")
		return func() { _ = store.Close() }, nil
	default:
		return func() {}, nil
	}
}

// originPatterns turns the CORS origins into the host patterns the websocket accept check uses.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/closemaster/closemaster/internal/auth"
	"github.com/closemaster/closemaster/internal/cache"
	"github.com/closemaster/closemaster/internal/config"
	"github.com/closemaster/closemaster/internal/game"
	"github.com/closemaster/closemaster/internal/handlers"
	"github.com/closemaster/closemaster/internal/middleware"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	signer, err := newSigner(cfg)
	if err != nil {
		logger.Fatalf("seat token signer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := handlers.NewHub(logger)
	opts := []game.Option{
		game.WithLogger(logger),
		game.WithGracePeriod(cfg.GracePeriod),
	}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			// Round history is optional; the game runs without it.
			logger.WithError(err).Warn("round history disabled")
		} else {
			defer rdb.Close()
			opts = append(opts, game.WithRecorder(cache.NewRoundPublisher(rdb, cfg.HistorianQueue)))
			logger.WithField("queue", cfg.HistorianQueue).Info("publishing rounds to redis")
		}
	}
	reg := game.NewRegistry(hub, opts...)
	d := handlers.NewDispatcher(hub, reg, signer, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(handlers.GameWSHandler(logger, hub, d)))
	mux.Handle("/", handlers.PingHandler(reg, hub))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("server shutdown")
		}
	}()

	logger.Infof("Running on %s", cfg.Addr())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
	logger.Info("server stopped")
}

func newSigner(cfg config.Config) (*auth.Signer, error) {
	ttl, err := auth.ParseExpireTime(cfg.TokenExpireTime)
	if err != nil {
		return nil, err
	}
	if cfg.TokenPrivateKey != "" && cfg.TokenPublicKey != "" {
		return auth.NewSignerFromPath(cfg.TokenPrivateKey, cfg.TokenPublicKey, ttl)
	}
	return auth.NewSigner(ttl)
}

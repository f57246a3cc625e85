// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/task-manager/internal/auth"
	"github.com/yourusername/task-manager/internal/config"
	"github.com/yourusername/task-manager/internal/logging"
	"github.com/yourusername/task-manager/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logging.New("info", os.Stdout)

	// 設定の読み込み（署名鍵が無ければ起動しない）
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, nil)
	if err != nil {
		return err
	}

	// ストアに接続できるまではリクエストを受け付けない
	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("failed to close store")
		}
	}()

	router := newRouter(cfg, dependencies{
		store:  store,
		hasher: auth.BcryptHasher{Cost: cfg.BcryptCost},
		tokens: tokens,
		logger: logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":   srv.Addr,
			"mode":   cfg.GinMode,
			"driver": cfg.StoreDriver,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

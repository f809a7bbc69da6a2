package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"VoiceLab/internal/config"
	"VoiceLab/internal/service/account"
)

// Отдельный сервис счетов и сессий. Студия ходит в него по ACCOUNT_SERVICE_URL,
// браузер — через общий обратный прокси, чтобы кука счёта жила на одном домене.
// В одиночном развёртывании бинарь не нужен: те же маршруты встроены в cmd/server.
func main() {
	cfg := config.NewConfig()

	var zl *zap.Logger
	var err error
	if cfg.DebugMode {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}

	logger := zl.Sugar()
	defer func() {
		if err := zl.Sync(); err != nil {
			logger.Errorw("Failed to sync logger", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	account.NewHandler(cfg.Account, logger, account.Hooks{}).Register(mux)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infow("Account service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) && err != nil {
			logger.Errorw("Account service stopped with error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Infow("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), 5*time.Second, errors.New("shutdown timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("graceful shutdown error", "error", err)
		_ = srv.Close()
	}

	logger.Infow("Account service stopped")
}

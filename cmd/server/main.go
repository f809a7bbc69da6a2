package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"VoiceLab/internal/ai"
	"VoiceLab/internal/app/janitor"
	"VoiceLab/internal/config"
	"VoiceLab/internal/service/account"
	"VoiceLab/internal/service/push"
	"VoiceLab/internal/service/session"
	"VoiceLab/internal/service/studio"
	"VoiceLab/internal/service/web"
)

func main() {
	cfg := config.NewConfig()

	// создаём предустановленный регистратор zap
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

	// делаем регистратор SugaredLogger
	logger := zl.Sugar()
	//сброс буфера логгера
	defer func() {
		if err := zl.Sync(); err != nil {
			logger.Errorw("Failed to sync logger", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infow(
		"Starting app",
		"DebugMode", cfg.DebugMode,
		"ListenAddr", cfg.ListenAddr,
		"AccountServiceURL", cfg.AccountServiceURL,
	)

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		logger.Errorw("Failed to create speech provider", "error", err)
		return
	}
	if closer, ok := provider.(io.Closer); ok {
		defer closer.Close()
	}

	hub := push.NewHub(logger)

	// Сервис счетов: пустой URL — встроенный, иначе внешний за общим прокси.
	baseURL := cfg.AccountServiceURL
	if baseURL == "" {
		baseURL = "http://" + cfg.ListenAddr
	}
	sessions := session.NewClient(baseURL, cfg.AccountTimeout, logger)
	registry := studio.NewRegistry(cfg, provider, sessions, hub, logger)

	var accounts *account.Handler
	if cfg.AccountServiceURL == "" {
		// Вход и выход сбрасывают кэш учётки конкретной студии.
		accounts = account.NewHandler(cfg.Account, logger, account.Hooks{
			OnLogin: func(r *http.Request) {
				if sid := studioID(r); sid != "" {
					registry.ResetAccount(sid)
					hub.Notify(sid, push.Event{Type: "auth"})
				}
			},
			OnLogout: func(r *http.Request) {
				if sid := studioID(r); sid != "" {
					registry.ResetAccount(sid)
				}
			},
		})
	}

	srv := web.NewServer(cfg, registry, accounts, hub, provider, logger)
	jan := janitor.New(registry, cfg.SweepInterval, cfg.StudioTTL, logger)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return jan.Run(gCtx) })
	g.Go(func() error {
		if err := srv.Start(gCtx); err != nil {
			return err
		}
		<-gCtx.Done()
		logger.Infow("Shutdown signal received")

		return srv.Stop(context.WithoutCancel(gCtx))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("App stopped with error", "error", err)
		return
	}

	logger.Infow("App stopped")
}

// newProvider выбирает провайдера речи по конфигурации.
func newProvider(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (ai.Client, error) {
	switch cfg.SpeechProvider {
	case "stub":
		return ai.NewStubClient(), nil
	case "cloud-tts":
		return ai.NewCloudTTS(ctx, logger)
	default:
		if cfg.Gemini.APIKey == "" && cfg.DebugMode {
			logger.Warnw("GEMINI_API_KEY is empty, using stub speech provider")
			return ai.NewStubClient(), nil
		}

		return ai.NewGemini(ctx, cfg.Gemini, logger)
	}
}

func studioID(r *http.Request) string {
	c, err := r.Cookie(web.StudioCookie)
	if err != nil {
		return ""
	}

	return c.Value
}

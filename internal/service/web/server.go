package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"VoiceLab/internal/ai"
	"VoiceLab/internal/config"
	"VoiceLab/internal/service/account"
	"VoiceLab/internal/service/push"
	"VoiceLab/internal/service/studio"
)

// StudioCookie кука с токеном студийной сессии. Отдельна от куки счёта:
// студия живёт и без входа.
const StudioCookie = "vl_studio"

// Server HTTP-поверхность студии: API конвейера, каталог голосов, раздача
// клиентского бандла и, во встроенном режиме, маршруты сервиса счетов.
type Server struct {
	cfg     *config.Config
	srv     *http.Server
	logger  *zap.SugaredLogger
	running atomic.Bool
	stopped chan struct{}

	registry *studio.Registry
	hub      *push.Hub
	provider ai.Client

	// Прослушивания каталога бесплатны, поэтому одинаковые запросы
	// схлопываются и результат запоминается.
	previews     singleflight.Group
	previewMu    sync.RWMutex
	previewCache map[string][]byte
}

func NewServer(cfg *config.Config, reg *studio.Registry, accounts *account.Handler, hub *push.Hub, provider ai.Client, logger *zap.SugaredLogger) *Server {
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		stopped:      make(chan struct{}),
		registry:     reg,
		hub:          hub,
		provider:     provider,
		previewCache: make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/speech", s.handleSpeech)
	mux.HandleFunc("/api/speech/cancel", s.handleCancel)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/audio/", s.handleAudio)
	mux.HandleFunc("/api/player", s.handlePlayer)
	mux.HandleFunc("/api/voices", s.handleVoices)
	mux.HandleFunc("/api/voices/", s.handleVoicePreview)
	mux.HandleFunc("/api/languages", s.handleLanguages)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/", s.handleStatic)

	// Встроенный режим: сервис счетов живёт на этом же сервере.
	if accounts != nil {
		accounts.Register(mux)
	}

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.withStudioSession(mux),
		ReadHeaderTimeout: 5 * time.Second,
		// Загрузка аудио и долгий синтез не укладываются в короткие
		// тайм-ауты, поэтому они заметно шире обычных.
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	go func() {
		s.logger.Infow("Studio server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) && err != nil {
			s.logger.Errorw("Studio server stopped with error", "error", err)
		} else {
			s.logger.Infow("Studio server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.WithoutCancel(ctx))
	}()

	return nil
}

// Stop гасит сервер. Повторный вызов дожидается завершения первого.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		<-s.stopped
		return nil
	}
	defer close(s.stopped)

	shutdownCtx, cancel := context.WithTimeoutCause(ctx, 5*time.Second, errors.New("studio server shutdown timeout"))
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnw("graceful shutdown error", "error", err)
		return s.srv.Close()
	}

	return nil
}

func (s *Server) Addr() string { return s.cfg.ListenAddr }

// withStudioSession выдаёт куку студийной сессии всем, у кого её ещё нет.
func (s *Server) withStudioSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(StudioCookie); err != nil {
			sid := newStudioID()
			http.SetCookie(w, &http.Cookie{
				Name:     StudioCookie,
				Value:    sid,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			// Обработчики этого же запроса тоже должны видеть куку.
			r.AddCookie(&http.Cookie{Name: StudioCookie, Value: sid})
		}

		next.ServeHTTP(w, r)
	})
}

package studio

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"VoiceLab/internal/ai"
	"VoiceLab/internal/config"
)

// Registry студии по токену студийной сессии. Студия создаётся при первом
// обращении; простаивающие вытесняются по TTL (см. Sweep).
type Registry struct {
	cfg      *config.Config
	ai       ai.Client
	accounts Accounts
	notify   Notifier
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	studios map[string]*Studio
	touched map[string]time.Time
}

func NewRegistry(cfg *config.Config, client ai.Client, accounts Accounts, notify Notifier, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		cfg:      cfg,
		ai:       client,
		accounts: accounts,
		notify:   notify,
		logger:   logger,
		studios:  make(map[string]*Studio),
		touched:  make(map[string]time.Time),
	}
}

// Studio возвращает студию сессии, при первом обращении создаёт её.
func (r *Registry) Studio(sid string) *Studio {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touched[sid] = time.Now()
	if s, ok := r.studios[sid]; ok {
		return s
	}

	s := New(sid, r.cfg, r.ai, r.accounts, r.notify, r.logger)
	r.studios[sid] = s

	return s
}

// ResetAccount сбрасывает кэш счёта сессии, не создавая студию.
func (r *Registry) ResetAccount(sid string) {
	r.mu.Lock()
	s, ok := r.studios[sid]
	r.mu.Unlock()

	if ok {
		s.ResetAccount()
	}
}

// Sweep вытесняет студии, к которым не обращались дольше ttl и в которых
// ничего не выполняется. Возвращает число удалённых.
func (r *Registry) Sweep(ttl time.Duration) int {
	deadline := time.Now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for sid, s := range r.studios {
		if r.touched[sid].After(deadline) || s.Phase() != PhaseIdle {
			continue
		}

		s.drop()
		delete(r.studios, sid)
		delete(r.touched, sid)
		removed++
	}

	return removed
}

// Len число живых студий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.studios)
}

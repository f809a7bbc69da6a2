package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"VoiceLab/internal/service/studio"
)

// Janitor вытесняет из реестра студии, к которым давно не обращались.
// Реестр ключуется кукой браузера, без уборки он растёт бесконечно.
type Janitor struct {
	registry *studio.Registry
	interval time.Duration
	ttl      time.Duration
	logger   *zap.SugaredLogger
}

func New(reg *studio.Registry, interval, ttl time.Duration, logger *zap.SugaredLogger) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Janitor{registry: reg, interval: interval, ttl: ttl, logger: logger}
}

// Run крутит цикл уборки до отмены контекста.
func (j *Janitor) Run(ctx context.Context) error {
	j.logger.Infow("Janitor started", "interval", j.interval.String(), "ttl", j.ttl.String())

	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-t.C:
			if removed := j.registry.Sweep(j.ttl); removed > 0 {
				j.logger.Infow("Idle studios evicted", "count", removed, "alive", j.registry.Len())
			}
		}
	}
}

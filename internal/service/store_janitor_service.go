package service

import (
	"context"
	"time"

	"servicelines-be/internal/pkg/logger"
)

// ExpiredPurger is implemented by backends that keep expired rows around,
// such as the postgres KV repository.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type StoreJanitor struct {
	purger   ExpiredPurger
	interval time.Duration
	logger   logger.ILogger
}

func NewStoreJanitor(purger ExpiredPurger, interval time.Duration, log logger.ILogger) *StoreJanitor {
	return &StoreJanitor{purger: purger, interval: interval, logger: log}
}

// Run purges on every tick until ctx is cancelled.
func (j *StoreJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.PurgeOnce(ctx)
		}
	}
}

func (j *StoreJanitor) PurgeOnce(ctx context.Context) {
	n, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		j.logger.Error("StoreJanitor", "Failed to purge expired session entries", map[string]interface{}{"error": err.Error()})
		return
	}
	if n > 0 {
		j.logger.Info("StoreJanitor", "Purged expired session entries", map[string]interface{}{"count": n})
	}
}

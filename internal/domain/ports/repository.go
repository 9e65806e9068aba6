package ports

import (
	"context"
	"time"

	"torrentstream/seedwarden/internal/domain"
)

type AlertRepository interface {
	Record(ctx context.Context, alert domain.StallAlert) error
	ListRecent(ctx context.Context, limit int) ([]domain.StallAlert, error)
}

type StatsCache interface {
	Get(ctx context.Context) (domain.TransferStats, bool, error)
	Set(ctx context.Context, stats domain.TransferStats, ttl time.Duration) error
}

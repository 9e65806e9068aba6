package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"torrentstream/seedwarden/internal/domain"
	"torrentstream/seedwarden/internal/metrics"
)

const (
	defaultStatsCacheTTL = 10 * time.Second
	statsCollectTimeout  = 30 * time.Second
)

// Summarize computes the global summary of a snapshot batch. The ratio is
// 0 when nothing has been downloaded.
func Summarize(transfers []domain.TransferSnapshot, now time.Time) domain.TransferStats {
	stats := domain.TransferStats{
		Total:       len(transfers),
		CollectedAt: now.UTC(),
	}
	for _, t := range transfers {
		if t.State.IsDownloading() {
			stats.Downloading++
		}
		if t.State.IsUploading() {
			stats.Seeding++
		}
		if t.Complete() {
			stats.Completed++
		}
		if t.State.IsStalled() {
			stats.Stalled++
		}
		stats.TotalUploaded += t.Uploaded
		stats.TotalDownloaded += t.Downloaded
	}
	if stats.TotalDownloaded > 0 {
		stats.TotalRatio = float64(stats.TotalUploaded) / float64(stats.TotalDownloaded)
	}
	return stats
}

// Stats returns the current summary. It never touches the stall ledger.
// Concurrent callers share one collection, and a configured cache serves
// recent results without hitting the client.
func (m *Monitor) Stats(ctx context.Context) (domain.TransferStats, error) {
	if m.statsCache != nil {
		cached, ok, err := m.statsCache.Get(ctx)
		if err != nil {
			m.logger.Debug("monitor: stats cache get failed", slog.String("error", err.Error()))
		} else if ok {
			metrics.StatsCacheHitsTotal.Inc()
			return cached, nil
		}
	}

	// The shared collection outlives any single caller; each caller still
	// stops waiting when its own ctx ends.
	ch := m.statsGroup.DoChan("stats", func() (any, error) {
		collectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statsCollectTimeout)
		defer cancel()
		transfers, err := m.client.ListTransfers(collectCtx)
		if err != nil {
			return domain.TransferStats{}, fmt.Errorf("%w: %v", ErrCollect, err)
		}
		return Summarize(transfers, m.now()), nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return domain.TransferStats{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return domain.TransferStats{}, res.Err
	}
	stats := res.Val.(domain.TransferStats)
	recordStatsGauges(stats)

	if m.statsCache != nil {
		ttl := m.cfg.StatsCacheTTL
		if ttl <= 0 {
			ttl = defaultStatsCacheTTL
		}
		if err := m.statsCache.Set(ctx, stats, ttl); err != nil {
			m.logger.Debug("monitor: stats cache set failed", slog.String("error", err.Error()))
		}
	}
	return stats, nil
}

func recordStatsGauges(stats domain.TransferStats) {
	metrics.TransfersByCategory.WithLabelValues("total").Set(float64(stats.Total))
	metrics.TransfersByCategory.WithLabelValues("downloading").Set(float64(stats.Downloading))
	metrics.TransfersByCategory.WithLabelValues("seeding").Set(float64(stats.Seeding))
	metrics.TransfersByCategory.WithLabelValues("completed").Set(float64(stats.Completed))
	metrics.TransfersByCategory.WithLabelValues("stalled").Set(float64(stats.Stalled))
	metrics.GlobalRatio.Set(stats.TotalRatio)
}

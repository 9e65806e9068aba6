package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"torrentstream/seedwarden/internal/domain"
	"torrentstream/seedwarden/internal/metrics"
)

// OptimizeResult counts what one optimisation pass did.
type OptimizeResult struct {
	High    int `json:"high"`
	Normal  int `json:"normal"`
	Low     int `json:"low"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// OptimizePriorities re-tiers every completed transfer by ratio: low ratios
// get high priority so they earn upload first, generous ones get low
// priority to free slots. Incomplete transfers are skipped.
func (m *Monitor) OptimizePriorities(ctx context.Context) (OptimizeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result OptimizeResult
	transfers, err := m.client.ListTransfers(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrCollect, err)
	}

	for _, t := range transfers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !t.Complete() {
			result.Skipped++
			continue
		}
		tier := domain.TierForRatio(t.Ratio)
		if err := m.client.SetPriority(ctx, t.ID, tier); err != nil {
			result.Failed++
			m.logger.Warn("monitor: set priority failed",
				slog.String("id", string(t.ID)),
				slog.String("name", t.Name),
				slog.String("tier", string(tier)),
				slog.String("error", commandFailed("set_priority", err).Error()))
			continue
		}
		metrics.PriorityAssignmentsTotal.WithLabelValues(string(tier)).Inc()
		switch tier {
		case domain.PriorityHigh:
			result.High++
		case domain.PriorityNormal:
			result.Normal++
		case domain.PriorityLow:
			result.Low++
		}
		m.publish(domain.MonitorEvent{
			Kind:       domain.EventPriority,
			TransferID: t.ID,
			Name:       t.Name,
			Ratio:      t.Ratio,
			Tier:       string(tier),
		})
	}

	m.logger.Info("monitor: priorities optimized",
		slog.Int("high", result.High),
		slog.Int("normal", result.Normal),
		slog.Int("low", result.Low),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return result, nil
}

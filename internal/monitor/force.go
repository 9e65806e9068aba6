package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"torrentstream/seedwarden/internal/domain"
)

// ForceContinueAllStalled resumes and reannounces every stalled transfer,
// bypassing the escalation ledger entirely. Both commands are sent to each
// stalled transfer even when one of them fails. It returns how many
// transfers were acted on.
func (m *Monitor) ForceContinueAllStalled(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transfers, err := m.client.ListTransfers(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCollect, err)
	}

	count, failed := 0, 0
	for _, t := range transfers {
		if !t.State.IsStalled() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}
		err := m.forceContinue(ctx, t)
		count++
		event := domain.MonitorEvent{
			Kind:       domain.EventForceContinue,
			TransferID: t.ID,
			Name:       t.Name,
		}
		if err != nil {
			failed++
			event.Error = err.Error()
			m.logger.Warn("monitor: force continue failed",
				slog.String("id", string(t.ID)),
				slog.String("name", t.Name),
				slog.String("error", err.Error()))
		}
		m.publish(event)
	}

	m.logger.Info("monitor: force continued stalled transfers",
		slog.Int("count", count),
		slog.Int("failed", failed))
	return count, nil
}

func (m *Monitor) forceContinue(ctx context.Context, t domain.TransferSnapshot) error {
	var errs []error
	if err := m.client.Resume(ctx, t.ID); err != nil {
		errs = append(errs, commandFailed("resume", err))
	}
	if err := m.client.Reannounce(ctx, t.ID); err != nil {
		errs = append(errs, commandFailed("reannounce", err))
	}
	return errors.Join(errs...)
}

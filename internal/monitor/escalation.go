package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"torrentstream/seedwarden/internal/domain"
	"torrentstream/seedwarden/internal/metrics"
)

// Action is what the escalation policy does for a given stall count.
type Action string

const (
	ActionObserve     Action = "monitor"
	ActionReannounce  Action = "reannounce"
	ActionPauseResume Action = "pause_resume"
	ActionAlert       Action = "alert"
)

// AlertLevel is the terminal escalation level. Past it the monitor only logs.
const AlertLevel = 4

const resumeAfterCancelTimeout = 10 * time.Second

// ActionForLevel maps a consecutive-stall count to its action, capping at
// AlertLevel.
func ActionForLevel(level int) Action {
	switch {
	case level <= 1:
		return ActionObserve
	case level == 2:
		return ActionReannounce
	case level == 3:
		return ActionPauseResume
	default:
		return ActionAlert
	}
}

func (m *Monitor) escalate(ctx context.Context, t domain.TransferSnapshot) error {
	level := m.ledger.Increment(t.ID)
	action := ActionForLevel(level)
	metrics.EscalationActionsTotal.WithLabelValues(string(action)).Inc()

	attrs := []any{
		slog.String("id", string(t.ID)),
		slog.String("name", t.Name),
		slog.String("state", t.State.String()),
		slog.Float64("progress", t.Progress),
		slog.Int("stallCount", level),
	}

	var err error
	switch action {
	case ActionObserve:
		m.logger.Warn("monitor: transfer stalled, watching", attrs...)
	case ActionReannounce:
		m.logger.Info("monitor: transfer still stalled, reannouncing", attrs...)
		if rerr := m.client.Reannounce(ctx, t.ID); rerr != nil {
			err = commandFailed("reannounce", rerr)
		}
	case ActionPauseResume:
		m.logger.Info("monitor: transfer still stalled, restarting", attrs...)
		err = m.pauseResume(ctx, t.ID)
	case ActionAlert:
		m.logger.Error("monitor: persistent stall, operator action required", attrs...)
		if level == AlertLevel {
			m.raiseAlert(ctx, t, level)
		}
	}

	event := domain.MonitorEvent{
		Kind:       domain.EventEscalation,
		TransferID: t.ID,
		Name:       t.Name,
		Level:      level,
		Action:     string(action),
	}
	if err != nil {
		event.Error = err.Error()
	}
	m.publish(event)
	return err
}

// pauseResume pauses, waits briefly and resumes. Once the pause went
// through the resume is always attempted, even if ctx is cancelled during
// the wait, so a shutdown never leaves a transfer paused.
func (m *Monitor) pauseResume(ctx context.Context, id domain.TransferID) error {
	if err := m.client.Pause(ctx, id); err != nil {
		return commandFailed("pause", err)
	}

	resumeCtx := ctx
	if delay := m.cfg.PauseResumeDelay; delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			var cancel context.CancelFunc
			resumeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), resumeAfterCancelTimeout)
			defer cancel()
		}
	}

	if err := m.client.Resume(resumeCtx, id); err != nil {
		return commandFailed("resume", err)
	}
	return nil
}

func (m *Monitor) raiseAlert(ctx context.Context, t domain.TransferSnapshot, level int) {
	raisedAt := m.now().UTC()
	alert := domain.StallAlert{
		ID:         fmt.Sprintf("%s:%d", t.ID, raisedAt.Unix()),
		TransferID: t.ID,
		Name:       t.Name,
		State:      t.State.String(),
		Progress:   t.Progress,
		StallCount: level,
		RaisedAt:   raisedAt,
	}
	if m.alerts != nil {
		if err := m.alerts.Record(ctx, alert); err != nil {
			m.logger.Warn("monitor: record stall alert failed",
				slog.String("id", string(t.ID)),
				slog.String("error", err.Error()))
		}
	}
	if m.notifier != nil {
		if err := m.notifier.NotifyStall(ctx, alert); err != nil {
			m.logger.Warn("monitor: stall notification failed",
				slog.String("id", string(t.ID)),
				slog.String("error", err.Error()))
		}
	}
}

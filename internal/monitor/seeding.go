package monitor

import (
	"context"
	"log/slog"

	"torrentstream/seedwarden/internal/domain"
)

type milestone struct {
	lower, upper float64
	label        string
}

// Ratio windows just past a notable threshold. Membership is tested on the
// live ratio each poll, so a jump across a window between two polls is not
// reported.
var milestones = []milestone{
	{lower: 2.0, upper: 2.1, label: "excellent"},
	{lower: 5.0, upper: 5.1, label: "outstanding"},
}

func milestoneFor(ratio float64) (milestone, bool) {
	for _, ms := range milestones {
		if ratio >= ms.lower && ratio < ms.upper {
			return ms, true
		}
	}
	return milestone{}, false
}

// assureSeeding resumes a completed transfer that is not uploading. The
// stall record is cleared whatever the outcome of the resume.
func (m *Monitor) assureSeeding(ctx context.Context, t domain.TransferSnapshot) error {
	err := m.client.Resume(ctx, t.ID)
	m.ledger.Clear(t.ID)
	if err != nil {
		m.publish(domain.MonitorEvent{
			Kind:       domain.EventSeedingResumed,
			TransferID: t.ID,
			Name:       t.Name,
			Error:      err.Error(),
		})
		return commandFailed("resume", err)
	}

	m.logger.Info("monitor: resumed completed transfer for seeding",
		slog.String("id", string(t.ID)),
		slog.String("name", t.Name),
		slog.String("state", t.State.String()))
	m.publish(domain.MonitorEvent{
		Kind:       domain.EventSeedingResumed,
		TransferID: t.ID,
		Name:       t.Name,
	})
	return nil
}

// observeSeeding is the recovery path for transfers that are uploading:
// drop the stall record and report ratio milestones. It never commands the
// client.
func (m *Monitor) observeSeeding(t domain.TransferSnapshot) {
	if m.ledger.Clear(t.ID) {
		m.logger.Info("monitor: stalled transfer recovered",
			slog.String("id", string(t.ID)),
			slog.String("name", t.Name))
	}

	ms, ok := milestoneFor(t.Ratio)
	if !ok {
		return
	}
	m.logger.Info("monitor: ratio milestone reached",
		slog.String("id", string(t.ID)),
		slog.String("name", t.Name),
		slog.String("milestone", ms.label),
		slog.Float64("ratio", t.Ratio))
	m.publish(domain.MonitorEvent{
		Kind:       domain.EventMilestone,
		TransferID: t.ID,
		Name:       t.Name,
		Action:     ms.label,
		Ratio:      t.Ratio,
	})
}

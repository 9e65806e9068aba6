package ports

import (
	"context"

	"torrentstream/seedwarden/internal/domain"
)

// AlertNotifier tells a human about a transfer the monitor has given up on.
type AlertNotifier interface {
	NotifyStall(ctx context.Context, alert domain.StallAlert) error
}

// EventPublisher receives every monitor event. Implementations must not block.
type EventPublisher interface {
	Publish(event domain.MonitorEvent)
}

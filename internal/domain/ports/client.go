package ports

import (
	"context"

	"torrentstream/seedwarden/internal/domain"
)

// TransferClient is the capability surface of an authenticated torrent
// client. Every call may block on I/O and fail independently.
type TransferClient interface {
	ListTransfers(ctx context.Context) ([]domain.TransferSnapshot, error)
	Reannounce(ctx context.Context, id domain.TransferID) error
	Pause(ctx context.Context, id domain.TransferID) error
	Resume(ctx context.Context, id domain.TransferID) error
	SetPriority(ctx context.Context, id domain.TransferID, tier domain.PriorityTier) error
}

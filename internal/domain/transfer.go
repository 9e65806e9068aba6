package domain

import (
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
)

// TransferID is the stable handle of a transfer: its hex-encoded v1 info hash.
type TransferID string

// ParseTransferID validates raw as a hex info hash and returns it in the
// lowercase form the client reports.
func ParseTransferID(raw string) (TransferID, error) {
	var h metainfo.Hash
	if err := h.FromHexString(strings.TrimSpace(raw)); err != nil {
		return "", ErrInvalidTransferID
	}
	return TransferID(h.HexString()), nil
}

// TransferSnapshot is the read-only view of one transfer at poll time.
type TransferSnapshot struct {
	ID         TransferID    `json:"id"`
	Name       string        `json:"name"`
	State      TransferState `json:"state"`
	RawState   string        `json:"rawState,omitempty"`
	Progress   float64       `json:"progress"`
	Ratio      float64       `json:"ratio"`
	Uploaded   int64         `json:"uploaded"`
	Downloaded int64         `json:"downloaded"`
}

// Complete reports whether every piece has been downloaded.
func (t TransferSnapshot) Complete() bool {
	return t.Progress >= 1.0
}

// TransferStats is a point-in-time summary of all managed transfers.
type TransferStats struct {
	Total           int       `json:"total"`
	Downloading     int       `json:"downloading"`
	Seeding         int       `json:"seeding"`
	Completed       int       `json:"completed"`
	Stalled         int       `json:"stalled"`
	TotalUploaded   int64     `json:"totalUploaded"`
	TotalDownloaded int64     `json:"totalDownloaded"`
	TotalRatio      float64   `json:"totalRatio"`
	CollectedAt     time.Time `json:"collectedAt"`
}

package domain

import "strings"

// TransferState is the lifecycle state reported by the torrent client,
// normalised to a closed set.
type TransferState int

const (
	StateUnknown TransferState = iota
	StateError
	StateMissingFiles
	StateAllocating
	StateMetadata
	StateForcedMetadata
	StateDownloading
	StateForcedDownload
	StateStalledDownload
	StateQueuedDownload
	StateCheckingDownload
	StatePausedDownload
	StateUploading
	StateForcedUpload
	StateStalledUpload
	StateQueuedUpload
	StateCheckingUpload
	StatePausedUpload
	StateCheckingResumeData
	StateMoving
)

// rawStates maps qBittorrent WebAPI state strings onto TransferState.
// qBittorrent 5 renamed paused* to stopped*; both spellings are accepted.
var rawStates = map[string]TransferState{
	"error":              StateError,
	"missingfiles":       StateMissingFiles,
	"allocating":         StateAllocating,
	"metadl":             StateMetadata,
	"forcedmetadl":       StateForcedMetadata,
	"downloading":        StateDownloading,
	"forceddl":           StateForcedDownload,
	"stalleddl":          StateStalledDownload,
	"queueddl":           StateQueuedDownload,
	"checkingdl":         StateCheckingDownload,
	"pauseddl":           StatePausedDownload,
	"stoppeddl":          StatePausedDownload,
	"uploading":          StateUploading,
	"forcedup":           StateForcedUpload,
	"stalledup":          StateStalledUpload,
	"queuedup":           StateQueuedUpload,
	"checkingup":         StateCheckingUpload,
	"pausedup":           StatePausedUpload,
	"stoppedup":          StatePausedUpload,
	"checkingresumedata": StateCheckingResumeData,
	"moving":             StateMoving,
}

var stateNames = map[TransferState]string{
	StateUnknown:            "unknown",
	StateError:              "error",
	StateMissingFiles:       "missingFiles",
	StateAllocating:         "allocating",
	StateMetadata:           "metaDL",
	StateForcedMetadata:     "forcedMetaDL",
	StateDownloading:        "downloading",
	StateForcedDownload:     "forcedDL",
	StateStalledDownload:    "stalledDL",
	StateQueuedDownload:     "queuedDL",
	StateCheckingDownload:   "checkingDL",
	StatePausedDownload:     "pausedDL",
	StateUploading:          "uploading",
	StateForcedUpload:       "forcedUP",
	StateStalledUpload:      "stalledUP",
	StateQueuedUpload:       "queuedUP",
	StateCheckingUpload:     "checkingUP",
	StatePausedUpload:       "pausedUP",
	StateCheckingResumeData: "checkingResumeData",
	StateMoving:             "moving",
}

// ParseTransferState is the single mapping from raw client strings into
// TransferState. Unrecognised values map to StateUnknown.
func ParseTransferState(raw string) TransferState {
	if state, ok := rawStates[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return state
	}
	return StateUnknown
}

func (s TransferState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s TransferState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TransferState) UnmarshalText(text []byte) error {
	*s = ParseTransferState(string(text))
	return nil
}

// IsStalledFetch reports whether a download is making no progress: either
// stalled on peers or still waiting for metadata.
func (s TransferState) IsStalledFetch() bool {
	switch s {
	case StateStalledDownload, StateMetadata, StateForcedMetadata:
		return true
	}
	return false
}

// IsUploading reports whether the transfer is in one of the seeding states.
func (s TransferState) IsUploading() bool {
	switch s {
	case StateUploading, StateForcedUpload, StateStalledUpload, StateQueuedUpload, StateCheckingUpload:
		return true
	}
	return false
}

// IsDownloading reports whether the transfer is actively fetching data,
// stalled or not.
func (s TransferState) IsDownloading() bool {
	switch s {
	case StateDownloading, StateForcedDownload, StateMetadata, StateForcedMetadata, StateStalledDownload:
		return true
	}
	return false
}

// IsStalled matches both stalled directions (stalledDL, stalledUP).
func (s TransferState) IsStalled() bool {
	return s == StateStalledDownload || s == StateStalledUpload
}

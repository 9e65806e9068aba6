package domain

// PriorityTier is the coarse upload preference assigned to a completed transfer.
type PriorityTier string

const (
	PriorityHigh   PriorityTier = "high"
	PriorityNormal PriorityTier = "normal"
	PriorityLow    PriorityTier = "low"
)

const (
	// RatioHealthy is the ratio at which a transfer stops needing extra upload.
	RatioHealthy = 1.0
	// RatioGenerous is the ratio above which upload slots are handed to others.
	RatioGenerous = 2.0
)

// TierForRatio buckets ratio into < 1.0 high, [1.0, 2.0) normal, >= 2.0 low.
func TierForRatio(ratio float64) PriorityTier {
	switch {
	case ratio < RatioHealthy:
		return PriorityHigh
	case ratio < RatioGenerous:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

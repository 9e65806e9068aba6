package monitor

import "torrentstream/seedwarden/internal/domain"

// Route is the branch a snapshot takes through one poll cycle.
type Route int

const (
	RouteNone Route = iota
	RouteStalled
	RouteAssureSeeding
	RouteSeeding
)

func (r Route) String() string {
	switch r {
	case RouteStalled:
		return "stalled"
	case RouteAssureSeeding:
		return "assure_seeding"
	case RouteSeeding:
		return "seeding"
	default:
		return "none"
	}
}

// Classify picks exactly one route. Order matters: an incomplete stalled
// fetch wins over everything, then completed-but-idle, then seeding.
// Anything else (plain downloading, queued, paused incomplete, errored) is
// left alone and keeps whatever stall record it had.
func Classify(t domain.TransferSnapshot) Route {
	switch {
	case t.State.IsStalledFetch() && !t.Complete():
		return RouteStalled
	case t.Complete() && !t.State.IsUploading():
		return RouteAssureSeeding
	case t.State.IsUploading():
		return RouteSeeding
	default:
		return RouteNone
	}
}

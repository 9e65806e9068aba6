package domain

import "time"

// StallAlert records a transfer that reached the terminal escalation level
// and now needs an operator.
type StallAlert struct {
	ID         string     `json:"id"`
	TransferID TransferID `json:"transferId"`
	Name       string     `json:"name"`
	State      string     `json:"state"`
	Progress   float64    `json:"progress"`
	StallCount int        `json:"stallCount"`
	RaisedAt   time.Time  `json:"raisedAt"`
}

type EventKind string

const (
	EventEscalation     EventKind = "escalation"
	EventSeedingResumed EventKind = "seeding_resumed"
	EventMilestone      EventKind = "milestone"
	EventForceContinue  EventKind = "force_continue"
	EventPriority       EventKind = "priority"
)

// MonitorEvent is published to observers whenever the monitor acts on a
// transfer or notices something worth surfacing.
type MonitorEvent struct {
	Kind       EventKind  `json:"kind"`
	TransferID TransferID `json:"transferId"`
	Name       string     `json:"name"`
	Level      int        `json:"level,omitempty"`
	Action     string     `json:"action,omitempty"`
	Ratio      float64    `json:"ratio,omitempty"`
	Tier       string     `json:"tier,omitempty"`
	Error      string     `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}

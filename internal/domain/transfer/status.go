package transfer

// Status represents the lifecycle state of a stock transfer
type Status string

const (
	StatusRequested         Status = "REQUESTED"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusInTransit         Status = "IN_TRANSIT"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelled         Status = "CANCELLED"
)

// transitions is the lifecycle DAG. COMPLETED has no outgoing edge; a
// reversal creates a sibling transfer instead of moving this one.
var transitions = map[Status][]Status{
	StatusRequested:         {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:          {StatusInTransit, StatusCancelled},
	StatusInTransit:         {StatusInTransit, StatusPartiallyReceived, StatusCompleted, StatusCancelled},
	StatusPartiallyReceived: {StatusPartiallyReceived, StatusCompleted},
}

func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusRequested, StatusApproved, StatusRejected, StatusInTransit,
		StatusPartiallyReceived, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true when no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllStatuses returns every status in lifecycle order
func AllStatuses() []Status {
	return []Status{
		StatusRequested, StatusApproved, StatusRejected, StatusInTransit,
		StatusPartiallyReceived, StatusCompleted, StatusCancelled,
	}
}

// InitiationType distinguishes who started the transfer
type InitiationType string

const (
	// InitiationPush is started by the sending branch
	InitiationPush InitiationType = "PUSH"
	// InitiationPull is started by the receiving branch
	InitiationPull InitiationType = "PULL"
)

func (t InitiationType) IsValid() bool {
	return t == InitiationPush || t == InitiationPull
}

// Priority of a transfer
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

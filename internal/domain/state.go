package domain

// State represents the states a job can be in.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateRetrying  State = "RETRYING"
	StateCancelled State = "CANCELLED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

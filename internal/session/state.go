package session

// State is the lifecycle position of an Engine. Completed is terminal:
// no mutation succeeds after it is entered.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateActive
	StatePaused
	StateSubmitting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// live reports whether session mutations (answers, marks, navigation) are
// accepted. Pausing stops the clock, not the student.
func (s State) live() bool {
	return s == StateActive || s == StatePaused
}

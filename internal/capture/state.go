package capture

// State is a step of the capture pipeline.
type State int

const (
	StateUnselected State = iota
	StateBackendChosen
	StateEnumerating
	StateGrabbing
	StateEncoding
	StateRequesting
	StateAwaitingSignal
	StateFileRead
	StateAssembled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnselected:
		return "unselected"
	case StateBackendChosen:
		return "backend_chosen"
	case StateEnumerating:
		return "enumerating"
	case StateGrabbing:
		return "grabbing"
	case StateEncoding:
		return "encoding"
	case StateRequesting:
		return "requesting"
	case StateAwaitingSignal:
		return "awaiting_signal"
	case StateFileRead:
		return "file_read"
	case StateAssembled:
		return "assembled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateAssembled || s == StateFailed
}

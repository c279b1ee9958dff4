package experiment

// State is a controller state.
type State int

const (
	AwaitingStart State = iota
	Presenting
	AwaitingResponse
	Logged
	SessionComplete
	Cancelled
)

var stateNames = [...]string{
	AwaitingStart:    "awaiting_start",
	Presenting:       "presenting",
	AwaitingResponse: "awaiting_response",
	Logged:           "logged",
	SessionComplete:  "complete",
	Cancelled:        "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == SessionComplete || s == Cancelled
}

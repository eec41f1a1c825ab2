package track

// transitions enumerates every legal status change. Anything absent is a
// caller error, surfaced as *TransitionError. Terminal states have no exits;
// stopping -> stopping allows a retried Stop after a failed final flush.
var transitions = map[Status][]Status{
	StatusIdle:      {StatusRecording, StatusDiscarded},
	StatusRecording: {StatusPaused, StatusStopping, StatusDiscarded},
	StatusPaused:    {StatusRecording, StatusStopping, StatusDiscarded},
	StatusStopping:  {StatusStopping, StatusCompleted, StatusDiscarded},
}

func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine is the session lifecycle state holder. It is not safe for
// concurrent use on its own; the engine guards it with the session mutex.
type machine struct {
	status Status
}

func newMachine() *machine {
	return &machine{status: StatusIdle}
}

func (m *machine) Status() Status {
	return m.status
}

// Transition moves to the target status or fails without side effects.
func (m *machine) Transition(to Status) error {
	if !canTransition(m.status, to) {
		return &TransitionError{From: m.status, To: to}
	}
	m.status = to
	return nil
}

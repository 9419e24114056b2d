package commandsession

// Phase is a step in a session's lifecycle.
type Phase int

const (
	Idle          Phase = iota // Created, Run not yet called
	Connecting                 // Dial in progress
	Connected                  // Transport up, command being written
	AwaitingClose              // Command written, waiting for the first reply bytes
	Completed                  // First reply bytes received
	Closed                     // Socket closed, by either side
	Failed                     // Dial, write or read error
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case AwaitingClose:
		return "AwaitingClose"
	case Completed:
		return "Completed"
	case Closed:
		return "Closed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether a session ends in p.
func (p Phase) IsTerminal() bool {
	return p == Completed || p == Closed || p == Failed
}

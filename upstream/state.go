package upstream

// State is C4's connection state machine, per spec.md §4.4. It is distinct
// from component.State (which tracks the managed-component lifecycle the
// service controller sees) — a Client can cycle through many State values
// while component.State stays StateStarted.
type State int

const (
	// Idle is the starting state and the state reached after a graceful stop.
	Idle State = iota
	// Connecting is attempting the transport-level handshake.
	Connecting
	// Subscribing has an open transport and is sending the subscription frame.
	Subscribing
	// Receiving has a confirmed subscription and is reading frames.
	Receiving
	// Closing is unwinding a Receiving connection in response to stop().
	Closing
	// Failed is a transient state that leads back to Connecting after the
	// reconnect backoff, or to Idle when the error is classified fatal.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Receiving:
		return "receiving"
	case Closing:
		return "closing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

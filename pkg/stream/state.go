// ABOUTME: Transport state reporting types
// ABOUTME: Defines OpenState and the Status snapshot returned by PollState
package stream

// OpenState is the coarse lifecycle state of a transport
type OpenState int

const (
	StateConnecting OpenState = iota
	StateReady
	StateError
	StateBuffering
)

func (s OpenState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateBuffering:
		return "buffering"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of a transport
type Status struct {
	State           OpenState
	PercentBuffered int
	Starving        bool
	DiskBusy        bool
	// Err holds the failure when State is StateError
	Err error
}

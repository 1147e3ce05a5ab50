// Package engine provides the story playback state machine.
package engine

// State represents the playback state.
type State int

const (
	StateIdle      State = iota // No active clock, playback not started
	StatePlaying                // Clock running for the current item
	StatePaused                 // Clock stopped, current item retained
	StateCompleted              // Sequence fully shown (terminal unless repeat)
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

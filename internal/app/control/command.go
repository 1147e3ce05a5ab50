// Package control provides the playback command type and the command hub.
package control

// Command represents a transient playback control command. Commands are
// signals, not stored state.
type Command int

const (
	Play     Command = iota // Start or resume playback
	Pause                   // Pause the current item
	Next                    // Advance to the next item
	Previous                // Go back one item
)

// String returns the string representation of the command.
func (c Command) String() string {
	switch c {
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Next:
		return "next"
	case Previous:
		return "previous"
	default:
		return "unknown"
	}
}

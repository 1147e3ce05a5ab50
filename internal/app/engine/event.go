package engine

import "github.com/tm038/storyline/internal/domain/story"

// EventType represents a playback event type.
type EventType int

const (
	EventItemShown    EventType = iota // An item became the current item
	EventItemEnded                     // The current item finished its duration
	EventStateChanged                  // Playback state changed (pause/resume)
	EventCompleted                     // The sequence finished a full cycle
	EventRepeated                      // Repeat reset the sequence for another cycle
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventItemShown:
		return "item_shown"
	case EventItemEnded:
		return "item_ended"
	case EventStateChanged:
		return "state_changed"
	case EventCompleted:
		return "completed"
	case EventRepeated:
		return "repeated"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type  EventType
	Item  *story.Item // Current item (nil for some events)
	Index int         // Index of Item in the sequence (-1 when Item is nil)
	State State       // Playback state after the transition
}

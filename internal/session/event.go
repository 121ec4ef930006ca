package session

import "fmt"

// EventKind identifies an [Event].
type EventKind int

const (
	// EventWake reports that the wake phrase was heard.
	EventWake EventKind = iota

	// EventReply carries text the assistant says, including wake-up
	// acknowledgements and command confirmations.
	EventReply

	// EventState reports a change of the listening state.
	EventState

	// EventTimeout reports that capture ended without a command.
	EventTimeout

	// EventReminder carries a reminder that has come due.
	EventReminder

	// EventStopped reports that speech recognition failed fatally. The
	// session keeps accepting typed input.
	EventStopped
)

// String returns the event name used on the wire and in logs.
func (k EventKind) String() string {
	switch k {
	case EventWake:
		return "wake"
	case EventReply:
		return "reply"
	case EventState:
		return "state"
	case EventTimeout:
		return "timeout"
	case EventReminder:
		return "reminder"
	case EventStopped:
		return "stopped"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is emitted by a [Session].
type Event struct {
	Kind EventKind

	// Text is the spoken text (EventReply, EventReminder).
	Text string

	// Intent is the classified intent of the utterance answered
	// (EventReply). Wake-up acknowledgements use "wake"; session commands
	// use "command".
	Intent string

	// State is the new listening state (EventState).
	State string

	// Err is the recognition failure (EventStopped).
	Err error
}

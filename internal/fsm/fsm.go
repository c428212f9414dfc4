// Package fsm holds the lifecycle state machines of IPC exchanges.
package fsm

import "fmt"

type State string

type Event string

// Client exchange states.
const (
	StateCreated       State = "created"
	StateConnected     State = "connected"
	StateSent          State = "sent"
	StateAwaitingReply State = "awaiting_reply"
	StateClosed        State = "closed"
)

// Server connection states.
const (
	StateAccepted   State = "accepted"
	StateReading    State = "reading"
	StateProcessing State = "processing"
	StateReplied    State = "replied"
)

const (
	EventConnect  Event = "connect"
	EventSend     Event = "send"
	EventWritten  Event = "written"
	EventReadable Event = "readable"
	EventComplete Event = "complete"
	EventFlushed  Event = "flushed"
	EventClose    Event = "close"
)

// ClientTransition drives one client round trip:
// created -> connected -> sent -> awaiting_reply -> closed.
func ClientTransition(current State, event Event) (State, error) {
	if event == EventClose {
		return StateClosed, nil
	}

	switch current {
	case StateCreated:
		switch event {
		case EventConnect:
			return StateConnected, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnected:
		switch event {
		case EventSend:
			return StateSent, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSent:
		switch event {
		case EventWritten:
			return StateAwaitingReply, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingReply, StateClosed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// ConnTransition drives one accepted server connection:
// accepted -> reading -> processing -> replied, closed from anywhere.
func ConnTransition(current State, event Event) (State, error) {
	if event == EventClose {
		return StateClosed, nil
	}

	switch current {
	case StateAccepted:
		switch event {
		case EventReadable:
			return StateReading, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReading:
		switch event {
		case EventReadable:
			return StateReading, nil
		case EventComplete:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventFlushed:
			return StateReplied, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReplied, StateClosed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}

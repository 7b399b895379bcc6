// Package fsm is the pipeline run state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle         State = "idle"
	StatePreparing    State = "preparing"
	StateCapturing    State = "capturing"
	StateConverting   State = "converting"
	StateTranscribing State = "transcribing"
	StateFinalizing   State = "finalizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

const (
	EventStart     Event = "start"
	EventLive      Event = "live"      // input is a capture device
	EventFile      Event = "file"      // input is a file needing normalization
	EventStopped   Event = "stopped"   // capture stopped and flushed
	EventConverted Event = "converted" // canonical PCM available
	EventExhausted Event = "exhausted" // segment stream ended or was cut short
	EventPersisted Event = "persisted"
	EventFail      Event = "fail"
	EventCancel    Event = "cancel"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

func Transition(current State, event Event) (State, error) {
	if current.Terminal() {
		return current, invalidTransition(current, event)
	}
	switch event {
	case EventFail:
		return StateFailed, nil
	case EventCancel:
		if current == StateIdle {
			return current, invalidTransition(current, event)
		}
		return StateCancelled, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StatePreparing, nil
		}
	case StatePreparing:
		switch event {
		case EventLive:
			return StateCapturing, nil
		case EventFile:
			return StateConverting, nil
		}
	case StateCapturing:
		switch event {
		case EventStopped:
			return StateTranscribing, nil
		}
	case StateConverting:
		switch event {
		case EventConverted:
			return StateTranscribing, nil
		}
	case StateTranscribing:
		switch event {
		case EventExhausted:
			return StateFinalizing, nil
		}
	case StateFinalizing:
		switch event {
		case EventPersisted:
			return StateDone, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(current, event)
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}

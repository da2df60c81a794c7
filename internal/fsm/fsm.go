// Package fsm defines the utterance segmentation state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	// StateIdle precedes the first utterance and is never re-entered.
	StateIdle State = "idle"
	// StateListening has an open utterance with no speech observed yet.
	StateListening State = "listening"
	// StateSpeaking has an open utterance that has seen speech.
	StateSpeaking State = "speaking"
	// StateDispatching has just closed an utterance and is handing out results.
	StateDispatching State = "dispatching"
	StateStopped     State = "stopped"
	StateFailed      State = "failed"
)

const (
	EventOpen    Event = "open"
	EventSpeech  Event = "speech"
	EventSilence Event = "silence"
	EventStop    Event = "stop"
	EventFail    Event = "fail"
)

// Terminal reports whether no further events are accepted from s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateFailed, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventOpen:
			return StateListening, nil
		case EventStop:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventSpeech:
			return StateSpeaking, nil
		case EventSilence:
			return StateListening, nil
		case EventStop:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSpeaking:
		switch event {
		case EventSpeech:
			return StateSpeaking, nil
		case EventSilence:
			return StateDispatching, nil
		case EventStop:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDispatching:
		switch event {
		case EventOpen:
			return StateListening, nil
		case EventStop:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopped, StateFailed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}

package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionUtteranceCycle(t *testing.T) {
	s := StateIdle

	steps := []struct {
		event Event
		want  State
	}{
		{EventOpen, StateListening},
		{EventSilence, StateListening},
		{EventSpeech, StateSpeaking},
		{EventSpeech, StateSpeaking},
		{EventSilence, StateDispatching},
		{EventOpen, StateListening},
		{EventStop, StateStopped},
	}

	for _, step := range steps {
		next, err := Transition(s, step.event)
		require.NoError(t, err)
		require.Equal(t, step.want, next, "event %s from %s", step.event, s)
		s = next
	}
}

func TestTransitionFailFromAnyStateGoesFailed(t *testing.T) {
	states := []State{StateIdle, StateListening, StateSpeaking, StateDispatching, StateStopped, StateFailed}
	for _, state := range states {
		next, err := Transition(state, EventFail)
		require.NoError(t, err)
		require.Equal(t, StateFailed, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle speech invalid", state: StateIdle, event: EventSpeech, want: StateIdle, wantErr: true},
		{name: "idle silence invalid", state: StateIdle, event: EventSilence, want: StateIdle, wantErr: true},
		{name: "idle stop valid", state: StateIdle, event: EventStop, want: StateStopped},
		{name: "listening open invalid", state: StateListening, event: EventOpen, want: StateListening, wantErr: true},
		{name: "speaking open invalid", state: StateSpeaking, event: EventOpen, want: StateSpeaking, wantErr: true},
		{name: "dispatching speech invalid", state: StateDispatching, event: EventSpeech, want: StateDispatching, wantErr: true},
		{name: "dispatching stop valid", state: StateDispatching, event: EventStop, want: StateStopped},
		{name: "stopped open invalid", state: StateStopped, event: EventOpen, want: StateStopped, wantErr: true},
		{name: "failed stop invalid", state: StateFailed, event: EventStop, want: StateFailed, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventOpen)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}

func TestTerminal(t *testing.T) {
	require.True(t, StateStopped.Terminal())
	require.True(t, StateFailed.Terminal())
	require.False(t, StateSpeaking.Terminal())
}

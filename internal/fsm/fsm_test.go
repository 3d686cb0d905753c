package fsm

import "testing"

func TestHappyPathCycle(t *testing.T) {
	state := StateIdle

	for _, step := range []struct {
		event Event
		want  State
	}{
		{EventStart, StateRecording},
		{EventStop, StateProcessing},
		{EventFinish, StateIdle},
	} {
		next, err := Transition(state, step.event)
		if err != nil {
			t.Fatalf("transition %s --(%s)-->: %v", state, step.event, err)
		}
		if next != step.want {
			t.Fatalf("transition %s --(%s)--> %s, want %s", state, step.event, next, step.want)
		}
		state = next
	}
}

func TestCancelReturnsToIdle(t *testing.T) {
	next, err := Transition(StateRecording, EventCancel)
	if err != nil {
		t.Fatalf("cancel from recording: %v", err)
	}
	if next != StateIdle {
		t.Fatalf("cancel from recording: got %s, want %s", next, StateIdle)
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	cases := []struct {
		state State
		event Event
	}{
		{StateIdle, EventStop},
		{StateIdle, EventCancel},
		{StateProcessing, EventStart},
		{StateProcessing, EventCancel},
		{StateProcessing, EventStop},
		{StateRecording, EventStart},
	}

	for _, tc := range cases {
		next, err := Transition(tc.state, tc.event)
		if err == nil {
			t.Fatalf("expected error for %s --(%s)-->", tc.state, tc.event)
		}
		if next != tc.state {
			t.Fatalf("invalid transition mutated state: %s --(%s)--> %s", tc.state, tc.event, next)
		}
	}
}

func TestFailAlwaysEntersError(t *testing.T) {
	for _, state := range []State{StateIdle, StateRecording, StateProcessing} {
		next, err := Transition(state, EventFail)
		if err != nil {
			t.Fatalf("fail from %s: %v", state, err)
		}
		if next != StateError {
			t.Fatalf("fail from %s: got %s", state, next)
		}
	}

	next, err := Transition(StateError, EventReset)
	if err != nil {
		t.Fatalf("reset from error: %v", err)
	}
	if next != StateIdle {
		t.Fatalf("reset from error: got %s", next)
	}
}

package agent

import "testing"

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from State
		ev   event
		want State
	}{
		{StateAwaitingModel, eventAnswer, StateDone},
		{StateAwaitingModel, eventCalls, StateAwaitingToolResults},
		{StateAwaitingToolResults, eventResults, StateAwaitingModel},
		{StateAwaitingToolResults, eventFault, StateAwaitingModel},
		{StateAwaitingModel, eventFault, StateAwaitingModel},
		{StateAwaitingModel, eventExhausted, StateAborted},
		{StateAwaitingModel, eventResults, StateAwaitingModel},
		{StateDone, eventCalls, StateDone},
		{StateAborted, eventFault, StateAborted},
	}
	for _, tc := range cases {
		if got := tc.from.On(tc.ev); got != tc.want {
			t.Errorf("%s on %d: expected %s, got %s", tc.from, tc.ev, tc.want, got)
		}
	}
}

func TestBudget(t *testing.T) {
	b := NewBudget(2)
	if !b.Next() || !b.Next() {
		t.Fatal("first two passes should be within budget")
	}
	if b.Next() {
		t.Error("third pass should exceed the budget")
	}
	if b.Used() != 3 {
		t.Errorf("expected 3 recorded passes, got %d", b.Used())
	}
}

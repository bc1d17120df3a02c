package agent

// State is where a run is in its loop.
type State string

const (
	StateAwaitingModel       State = "awaiting_model"
	StateAwaitingToolResults State = "awaiting_tool_results"
	StateDone                State = "done"
	StateAborted             State = "aborted"
)

type event int

const (
	eventAnswer    event = iota // model replied with text only
	eventCalls                  // model asked for tools
	eventResults                // tool replies were appended
	eventFault                  // the pass failed and is being skipped
	eventExhausted              // iteration budget ran out
)

// On returns the state after ev. Terminal states never change; events that do
// not apply leave the state as is.
func (s State) On(ev event) State {
	if s.Terminal() {
		return s
	}
	switch ev {
	case eventExhausted:
		return StateAborted
	case eventFault:
		return StateAwaitingModel
	}
	switch {
	case s == StateAwaitingModel && ev == eventAnswer:
		return StateDone
	case s == StateAwaitingModel && ev == eventCalls:
		return StateAwaitingToolResults
	case s == StateAwaitingToolResults && ev == eventResults:
		return StateAwaitingModel
	}
	return s
}

func (s State) Terminal() bool { return s == StateDone || s == StateAborted }

// Budget counts loop passes against a maximum.
type Budget struct {
	max  int
	used int
}

func NewBudget(max int) *Budget { return &Budget{max: max} }

// Next records a pass and reports whether it is within the budget.
func (b *Budget) Next() bool {
	b.used++
	return b.used <= b.max
}

func (b *Budget) Used() int { return b.used }

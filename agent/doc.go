// Package agent runs the tool-dispatch loop for codeloop.
//
// An Agent owns a run's conversation and iteration budget. Each pass sends
// the whole conversation to the LLM client. A reply without tool calls is the
// final answer. A reply with tool calls is recorded as a model_call turn, the
// calls are dispatched one after another through the tool registry, and their
// results are recorded as a single tool_reply turn before the next pass.
//
// # States
//
//	awaiting_model --calls--> awaiting_tool_results --results--> awaiting_model
//	awaiting_model --answer--> done
//	any            --budget exhausted--> aborted
//
// A pass that fails (the backend errors, or the reply is neither an answer nor
// a usable call batch) takes the fault transition back to awaiting_model. The
// fault is logged and reported through Callbacks.OnFault, and the pass still
// counts against the budget.
//
// # Usage
//
//	a, err := agent.New(cfg, client, "default")
//	if err != nil {
//	    // handle error
//	}
//	a.Callbacks.OnToolCall = func(call session.ToolCall) {
//	    fmt.Printf(" - Calling function: %s\n", call.Name)
//	}
//	res, err := a.Run(ctx, prompt)
package agent

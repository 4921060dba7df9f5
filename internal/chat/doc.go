// Package chat implements Lakitu's turn orchestrator: the bounded
// tool-calling loop that drives a single conversational round against
// the model.
//
// A round starts from the caller's message history and runs up to
// MaxSteps model calls. After each call the orchestrator inspects the
// response: tool requests are executed through the tool registry, their
// results are folded back into the message history, and the loop
// continues. On the final permitted step tool access is withheld so the
// model must produce a plain text answer.
//
// Progress is reported as an ordered stream of Events on a channel
// returned by Agent.Run:
//
//	events, err := agent.Run(ctx, msgs)
//	if err != nil { ... }
//	for ev := range events {
//	    switch ev.Type {
//	    case chat.EventTextDelta:
//	        fmt.Print(ev.Delta.Text)
//	    case chat.EventTurnFinished:
//	        ...
//	    }
//	}
//
// The channel is closed after exactly one terminal event (turn-finished
// or error). Tool failures are not terminal: they are reported as
// tool-result-available events carrying an error-status result, and the
// model sees the failure payload on the next step. Only transport-level
// failures (model unreachable after retries, context canceled, round
// timeout) end the round with an error event.
package chat

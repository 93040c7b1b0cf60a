package agentclient

import (
	"context"
	"strings"
)

// Drain reads every event off stream until the terminal KindResult
// event, concatenating assistant message text along the way. It is the
// one-shot counterpart to iteration.Consume for callers (Triage,
// Verify) that need the agent's final text rather than context-budget
// bookkeeping: a single classification or review call has no overflow
// threshold to watch.
//
// An external cancellation requests Interrupt and keeps draining, the
// same discipline iteration.Consume uses, so the stream always reaches
// its terminal event before Drain returns (spec §4.5 Cancellation).
func Drain(ctx context.Context, stream Stream) (text string, result Event) {
	events := make(chan Event)
	go func() {
		defer close(events)
		for {
			ev, ok := stream.Recv()
			if !ok {
				return
			}
			events <- ev
		}
	}()

	var sb strings.Builder
	interrupted := false
	for {
		select {
		case <-ctx.Done():
			if !interrupted {
				interrupted = true
				stream.Interrupt()
			}
		case ev, ok := <-events:
			if !ok {
				return sb.String(), Event{Kind: KindResult, Outcome: OutcomeError, Err: ctx.Err()}
			}
			if ev.Kind == KindAssistant && ev.Message != nil {
				sb.WriteString(ev.Message.Content)
			}
			if ev.Kind == KindResult {
				return sb.String(), ev
			}
		}
	}
}

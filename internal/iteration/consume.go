package iteration

import (
	"context"

	"github.com/vx-daniel/barf/internal/agentclient"
	"github.com/vx-daniel/barf/internal/contextbudget"
)

// Outcome tags how one agent iteration concluded, per spec §4.5's
// discriminated stream outcome.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeOverflow    Outcome = "overflow"
	OutcomeError       Outcome = "error"
	OutcomeRateLimited Outcome = "rate_limited"
)

// Result is the discriminated outcome of consuming one agent stream.
// Tokens is the context-budget running maximum (input + cache tokens);
// Usage is the last reported usage counters, used for cumulative
// input/output token bookkeeping.
type Result struct {
	Outcome Outcome
	Tokens  int
	Usage   agentclient.Usage
	ResetAt *string
	Err     error
}

// Consume is the single-reader loop that drives one agent iteration to
// completion: it watches cumulative tokens against the configured
// threshold and interrupts the agent on overflow, and it honors an
// external cancellation by interrupting and draining to a terminal
// result rather than returning early (spec §4.5 Cancellation).
func Consume(ctx context.Context, stream agentclient.Stream, model string, percent int, sink func(agentclient.Event)) Result {
	events := make(chan agentclient.Event)
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

	tracker := &contextbudget.Tracker{}
	overflowed := false
	cancelled := false
	var lastUsage agentclient.Usage

	for {
		select {
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				stream.Interrupt()
			}
		case ev, ok := <-events:
			if !ok {
				return terminal(tracker.MaxTokens(), lastUsage, overflowed, cancelled, nil, ctx.Err())
			}
			if sink != nil {
				sink(ev)
			}
			tracker.Observe(ev)
			lastUsage = ev.Usage
			if !overflowed && !cancelled && tracker.Overflowed(model, percent) {
				overflowed = true
				stream.Interrupt()
			}
			if ev.Kind == agentclient.KindResult {
				return terminal(tracker.MaxTokens(), lastUsage, overflowed, cancelled, &ev, ev.Err)
			}
		}
	}
}

func terminal(tokens int, usage agentclient.Usage, overflowed, cancelled bool, ev *agentclient.Event, err error) Result {
	if cancelled {
		return Result{Outcome: OutcomeError, Tokens: tokens, Usage: usage, Err: err}
	}
	if overflowed {
		return Result{Outcome: OutcomeOverflow, Tokens: tokens, Usage: usage}
	}
	if ev == nil {
		return Result{Outcome: OutcomeError, Tokens: tokens, Usage: usage, Err: err}
	}
	switch ev.Outcome {
	case agentclient.OutcomeSuccess:
		return Result{Outcome: OutcomeSuccess, Tokens: tokens, Usage: usage}
	case agentclient.OutcomeRateLimited:
		return Result{Outcome: OutcomeRateLimited, Tokens: tokens, Usage: usage, ResetAt: ev.ResetAt}
	case agentclient.OutcomeOverflow:
		return Result{Outcome: OutcomeOverflow, Tokens: tokens, Usage: usage}
	default:
		return Result{Outcome: OutcomeError, Tokens: tokens, Usage: usage, Err: ev.Err}
	}
}

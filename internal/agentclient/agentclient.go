// Package agentclient defines the external agent-process contract from
// spec §6: a prompt/model/cancellation-signal request produces an
// asynchronous stream of tagged messages carrying usage counters. The
// shape mirrors the teacher's provider.Provider / CompletionStream
// pair, but trades the teacher's direct Eino ChatModel binding for a
// narrower interface so IterationLoop can drive either a real Eino-
// backed client or a scripted test double (MockClient, in mock.go).
package agentclient

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// MessageKind discriminates one streamed event from an agent run.
type MessageKind string

const (
	KindAssistant MessageKind = "assistant"
	KindTool      MessageKind = "tool"
	KindResult    MessageKind = "result"
)

// Usage is the token accounting carried by assistant and result
// messages. ContextBudget sums InputTokens + CacheCreationInputTokens
// + CacheReadInputTokens across main-context turns to evaluate
// overflow (spec §4.6).
type Usage struct {
	InputTokens              int
	OutputTokens             int
	CacheCreationInputTokens int
	CacheReadInputTokens     int
}

// Outcome tags how one agent run concluded. Event carries Outcome only
// on a KindResult message.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeOverflow    Outcome = "overflow"
	OutcomeError       Outcome = "error"
	OutcomeRateLimited Outcome = "rate_limited"
)

// Event is one message on the stream returned by Run. ParentToolUseID
// is set on messages produced by a sub-agent invocation, distinguishing
// them from the main conversation turn for context-budget accounting
// (spec §4.6: "excluding sub-agent turns").
type Event struct {
	Kind            MessageKind
	Message         *schema.Message
	ParentToolUseID *string
	Usage           Usage

	// Outcome and Err are populated only on KindResult.
	Outcome Outcome
	Err     error
	// ResetAt is set when Outcome is OutcomeRateLimited and the
	// provider reported a retry-after time.
	ResetAt *string
}

// Request is one agent invocation.
type Request struct {
	Prompt string
	Model  string
	// Sink, if set, receives every Event in addition to the stream
	// returned by Run — used for optional per-issue stream dumps
	// (spec §6 file layout: streams/<id>.jsonl).
	Sink func(Event)
}

// Stream is the asynchronous, single-reader event sequence for one
// Request. The consumer is the only point where waiting occurs (spec
// §5); it must drain to a terminal KindResult event even after calling
// Interrupt.
type Stream interface {
	// Recv blocks for the next event. ok is false once the stream is
	// exhausted; callers must stop calling Recv at that point.
	Recv() (Event, bool)
	// Interrupt requests the stream close with a terminal result
	// within a bounded time. Safe to call more than once.
	Interrupt()
}

// Client runs one agent iteration per Run call.
type Client interface {
	Run(ctx context.Context, req Request) (Stream, error)
}

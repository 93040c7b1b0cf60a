package agentclient

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// MockStep is one scripted response for MockClient: the Nth call to
// Run returns the Nth step's outcome. Scenarios S1-S6 in the testable
// properties section are built from sequences of these.
type MockStep struct {
	Outcome Outcome
	Usage   Usage
	ResetAt *string
	Text    string
}

// MockClient replays a fixed script of outcomes, one per call to Run,
// so IterationLoop and Orchestrator tests are deterministic without a
// live agent process. Calls beyond the script length repeat the last
// step.
type MockClient struct {
	Steps []MockStep
	calls int

	// Calls records every request's (Model, Prompt) pair for assertions.
	Calls []Request
}

func (m *MockClient) Run(ctx context.Context, req Request) (Stream, error) {
	m.Calls = append(m.Calls, req)

	step := m.nextStep()

	events := make(chan Event, 2)
	if step.Text != "" {
		events <- Event{Kind: KindAssistant, Message: schema.AssistantMessage(step.Text, nil), Usage: step.Usage}
	}
	events <- Event{Kind: KindResult, Outcome: step.Outcome, Usage: step.Usage, ResetAt: step.ResetAt}
	close(events)

	return &mockStream{events: events}, nil
}

func (m *MockClient) nextStep() MockStep {
	if len(m.Steps) == 0 {
		return MockStep{Outcome: OutcomeSuccess}
	}
	idx := m.calls
	if idx >= len(m.Steps) {
		idx = len(m.Steps) - 1
	}
	m.calls++
	return m.Steps[idx]
}

type mockStream struct {
	events chan Event
}

func (s *mockStream) Recv() (Event, bool) {
	ev, ok := <-s.events
	return ev, ok
}

func (s *mockStream) Interrupt() {}

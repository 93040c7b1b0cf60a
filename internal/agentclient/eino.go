package agentclient

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoClient adapts an Eino ToolCallingChatModel (as configured by the
// teacher's provider package for Anthropic/Bedrock) to the Client
// contract: one Run call per iteration, streaming back tagged events
// instead of the teacher's raw CompletionStream.
type EinoClient struct {
	chatModel model.ToolCallingChatModel
}

// NewEinoClient wraps a ready-to-use chat model.
func NewEinoClient(chatModel model.ToolCallingChatModel) *EinoClient {
	return &EinoClient{chatModel: chatModel}
}

// Run starts one streaming completion and returns immediately; the
// returned Stream delivers events as they arrive from the provider.
func (c *EinoClient) Run(ctx context.Context, req Request) (Stream, error) {
	runCtx, cancel := context.WithCancel(ctx)

	messages := []*schema.Message{schema.UserMessage(req.Prompt)}
	reader, err := c.chatModel.Stream(runCtx, messages, model.WithModel(req.Model))
	if err != nil {
		cancel()
		return nil, err
	}

	s := &einoStream{
		reader: reader,
		cancel: cancel,
		events: make(chan Event, 16),
		sink:   req.Sink,
	}
	go s.pump()
	return s, nil
}

type einoStream struct {
	reader      *schema.StreamReader[*schema.Message]
	cancel      context.CancelFunc
	events      chan Event
	sink        func(Event)
	interrupted atomic.Bool
}

func (s *einoStream) pump() {
	defer close(s.events)
	defer s.reader.Close()

	var usage Usage
	for {
		msg, err := s.reader.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.emit(Event{Kind: KindResult, Outcome: OutcomeSuccess, Usage: usage})
				return
			}
			s.emit(s.terminalFor(err, usage))
			return
		}

		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			u := msg.ResponseMeta.Usage
			usage.InputTokens = u.PromptTokens
			usage.OutputTokens = u.CompletionTokens
		}

		kind := KindAssistant
		if len(msg.ToolCalls) > 0 {
			kind = KindTool
		}
		s.emit(Event{Kind: kind, Message: msg, Usage: usage})
	}
}

func (s *einoStream) terminalFor(err error, usage Usage) Event {
	if s.interrupted.Load() {
		return Event{Kind: KindResult, Outcome: OutcomeError, Usage: usage, Err: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return Event{Kind: KindResult, Outcome: OutcomeRateLimited, Usage: usage, Err: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), "context") && strings.Contains(strings.ToLower(err.Error()), "exceed") {
		return Event{Kind: KindResult, Outcome: OutcomeOverflow, Usage: usage, Err: err}
	}
	return Event{Kind: KindResult, Outcome: OutcomeError, Usage: usage, Err: err}
}

func (s *einoStream) emit(ev Event) {
	if s.sink != nil {
		s.sink(ev)
	}
	s.events <- ev
}

func (s *einoStream) Recv() (Event, bool) {
	ev, ok := <-s.events
	return ev, ok
}

// Interrupt cancels the underlying stream context; pump observes the
// resulting error on its next Recv and emits a terminal KindResult
// event before closing events.
func (s *einoStream) Interrupt() {
	if s.interrupted.CompareAndSwap(false, true) {
		s.cancel()
	}
}

// Package triage implements the one-shot classification noted in spec
// §2 component 11: a thin wrapper over the same AgentClient interface
// IterationLoop drives, run once per freshly created issue rather than
// in a plan/build/split cycle. Its only output is Issue.NeedsInterview
// — whether the issue's body is underspecified enough that an
// operator should be asked to fill in detail before planning starts.
//
// The spec notes this component only briefly ("noted but not specified
// in depth... a thin wrapper over the same agent interface"), so this
// package stays correspondingly small: one agent call, one classified
// field, no retry or split logic of its own.
package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vx-daniel/barf/internal/agentclient"
	"github.com/vx-daniel/barf/internal/issuestore"
)

// needsInterviewMarker is the substring the triage prompt asks the
// agent to emit when an issue is too underspecified to plan directly.
const needsInterviewMarker = "NEEDS_INTERVIEW"

// Deps bundles triage's external collaborators.
type Deps struct {
	Store *issuestore.Store
	Agent agentclient.Client
	Model string
}

const promptTemplate = `You are triaging a newly filed issue before planning begins.

Title: %s

Body:
%s

Reply with the single token %s if the body lacks enough detail for an
implementer to plan from, or OK if it is ready to plan.`

// Run classifies issueID and persists the result onto
// Issue.NeedsInterview. It never transitions issue state and never
// fails the caller: an agent or store error is logged and leaves
// NeedsInterview unset, matching the "never block new-issue intake"
// posture the spec implies by describing triage as a thin, best-effort
// wrapper.
func Run(ctx context.Context, issueID string, deps Deps) {
	iss, err := deps.Store.Fetch(ctx, issueID)
	if err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("triage: fetch failed")
		return
	}

	prompt := fmt.Sprintf(promptTemplate, iss.Title, iss.Body, needsInterviewMarker)
	stream, err := deps.Agent.Run(ctx, agentclient.Request{Prompt: prompt, Model: deps.Model})
	if err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("triage: agent run failed")
		return
	}

	text, result := agentclient.Drain(ctx, stream)
	if result.Outcome != agentclient.OutcomeSuccess {
		log.Warn().Str("issue", issueID).Str("outcome", string(result.Outcome)).Msg("triage: agent did not complete")
		return
	}

	needsInterview := strings.Contains(strings.ToUpper(text), needsInterviewMarker)

	iss, err = deps.Store.Fetch(ctx, issueID)
	if err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("triage: re-fetch before persist failed")
		return
	}
	iss.NeedsInterview = &needsInterview
	if err := deps.Store.Write(ctx, iss); err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("triage: persist result failed")
	}
}

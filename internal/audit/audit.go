// Package audit provides the default Auditor (spec §2 component 9's
// "external audit" collaborator): one agent call reviews every issue
// currently COMPLETED or VERIFIED (issues are not filtered by when they
// were completed) and proposes fix issues, the same
// single-call-then-parse shape internal/verify uses for per-issue
// review.
package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vx-daniel/barf/internal/agentclient"
	"github.com/vx-daniel/barf/internal/issuestore"
	"github.com/vx-daniel/barf/pkg/types"
)

// noFindingsMarker is the token the audit prompt asks the agent to
// emit when a review turns up nothing worth filing.
const noFindingsMarker = "AUDIT_CLEAN"

// findingSeparator delimits one proposed fix issue from the next in
// the agent's reply, so a single completion can cover every finding.
const findingSeparator = "\n---FINDING---\n"

// Deps bundles the Auditor's external collaborators.
type Deps struct {
	Store *issuestore.Store
	Agent agentclient.Client
	Model string
}

// Auditor adapts Deps to orchestrator.Auditor.
type Auditor struct{ deps Deps }

// New builds an agent-backed Auditor.
func New(deps Deps) *Auditor { return &Auditor{deps: deps} }

const promptTemplate = `Review the following completed issues for
correctness, regressions, and anything a careful reviewer would flag.

%s

If everything holds up, reply with exactly %s. Otherwise, for each
problem found, reply with a block of the form:

Title: <short title>
<description of the problem and what should change>

Separate multiple findings with a line containing only ---FINDING---.`

// Audit reviews every issue in states COMPLETED or VERIFIED and
// returns the fix issues the reviewer proposed, if any. It never
// returns an error for a parse failure: a reply block without a
// "Title:" line is still filed as a finding, under the default title
// "audit finding", rather than blocking the gate indefinitely.
func (a *Auditor) Audit(ctx context.Context) ([]issuestore.CreateParams, error) {
	issues, err := a.deps.Store.ListIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: list issues: %w", err)
	}

	var reviewed []types.Issue
	for _, iss := range issues {
		if iss.State == types.StateCompleted || iss.State == types.StateVerified {
			reviewed = append(reviewed, iss)
		}
	}
	if len(reviewed) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(promptTemplate, summarize(reviewed), noFindingsMarker)
	stream, err := a.deps.Agent.Run(ctx, agentclient.Request{Prompt: prompt, Model: a.deps.Model})
	if err != nil {
		return nil, fmt.Errorf("audit: agent run: %w", err)
	}

	text, result := agentclient.Drain(ctx, stream)
	if result.Outcome != agentclient.OutcomeSuccess {
		return nil, fmt.Errorf("audit: agent run outcome %s: %w", result.Outcome, result.Err)
	}
	if strings.Contains(text, noFindingsMarker) {
		return nil, nil
	}

	return parseFindings(text), nil
}

func summarize(issues []types.Issue) string {
	var sb strings.Builder
	for _, iss := range issues {
		fmt.Fprintf(&sb, "## #%s: %s\n%s\n\n", iss.ID, iss.Title, iss.Body)
	}
	return sb.String()
}

// parseFindings splits the agent's reply on findingSeparator and turns
// each non-empty block into a fix issue, using its first "Title:" line
// as the title and the remainder as the body.
func parseFindings(text string) []issuestore.CreateParams {
	var findings []issuestore.CreateParams
	for _, block := range strings.Split(text, findingSeparator) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		title := "audit finding"
		body := block
		lines := strings.SplitN(block, "\n", 2)
		if strings.HasPrefix(lines[0], "Title:") {
			title = strings.TrimSpace(strings.TrimPrefix(lines[0], "Title:"))
			if len(lines) > 1 {
				body = strings.TrimSpace(lines[1])
			} else {
				body = ""
			}
		}
		if title == "" {
			log.Warn().Msg("audit: finding block missing title, using default")
			title = "audit finding"
		}
		findings = append(findings, issuestore.CreateParams{Title: "audit: " + title, Body: body})
	}
	return findings
}

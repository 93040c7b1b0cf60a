// Package verify implements the post-completion check from spec §2
// component 12 and resolves Open Question #2 (SPEC_FULL.md
// "Verification re-open trigger point"): Run is the sole writer of the
// COMPLETED -> IN_PROGRESS transition. It is invoked synchronously by
// IterationLoop immediately after a COMPLETED transition (spec §4.8
// dispatch table), reviews the issue with one more agent call, and
// either re-opens the issue for another build cycle or — once
// verify_count exhausts maxVerifyRetries — files a persistent fix
// child issue instead of bouncing the same issue forever.
package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/vx-daniel/barf/internal/agentclient"
	"github.com/vx-daniel/barf/internal/issuestore"
	"github.com/vx-daniel/barf/pkg/types"
)

// passMarker is the token the verify prompt asks the agent to emit
// when the issue's acceptance criteria genuinely hold.
const passMarker = "VERIFY_PASS"

// Deps bundles verify's external collaborators.
type Deps struct {
	Store *issuestore.Store
	Agent agentclient.Client
	Model string
	// MaxRetries bounds how many times Run may re-open an issue before
	// giving up and filing a fix child (spec §6 maxVerifyRetries).
	MaxRetries int
}

const promptTemplate = `Review the completed work for this issue against its acceptance criteria.

Title: %s

Body:
%s

Reply with %s if the acceptance criteria are genuinely met. Otherwise
explain precisely what is missing or still broken.`

// Run reviews issueID, which the caller has just transitioned to
// COMPLETED. A pass transitions the issue to VERIFIED. A failure either re-opens
// the issue to IN_PROGRESS and increments VerifyCount, or — once
// MaxRetries is exhausted — sets VerifyExhausted and files a fix child
// issue marked IsVerifyFix, leaving the parent COMPLETED.
//
// Run never propagates an error to the caller (spec §7: "Verify...
// never propagate: log and continue"); IterationLoop still breaks its
// loop regardless of what Verify decides.
func Run(ctx context.Context, issueID string, deps Deps) error {
	iss, err := deps.Store.Fetch(ctx, issueID)
	if err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("verify: fetch failed")
		return nil
	}
	if iss.State != types.StateCompleted {
		return nil
	}

	prompt := fmt.Sprintf(promptTemplate, iss.Title, iss.Body, passMarker)
	stream, err := deps.Agent.Run(ctx, agentclient.Request{Prompt: prompt, Model: deps.Model})
	if err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("verify: agent run failed")
		return nil
	}

	text, result := agentclient.Drain(ctx, stream)
	if result.Outcome == agentclient.OutcomeSuccess && strings.Contains(text, passMarker) {
		if _, err := deps.Store.Transition(ctx, issueID, types.StateVerified); err != nil {
			log.Warn().Err(err).Str("issue", issueID).Msg("verify: transition to VERIFIED failed")
		}
		return nil
	}

	iss, err = deps.Store.Fetch(ctx, issueID)
	if err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("verify: re-fetch before persist failed")
		return nil
	}
	iss.VerifyCount++

	if iss.VerifyCount < deps.MaxRetries {
		if err := deps.Store.Write(ctx, iss); err != nil {
			log.Warn().Err(err).Str("issue", issueID).Msg("verify: persist verify_count failed")
			return nil
		}
		if _, err := deps.Store.Transition(ctx, issueID, types.StateInProgress); err != nil {
			log.Warn().Err(err).Str("issue", issueID).Msg("verify: reopen transition failed")
		}
		return nil
	}

	iss.VerifyExhausted = true
	if err := deps.Store.Write(ctx, iss); err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("verify: persist verify_exhausted failed")
		return nil
	}

	child, err := deps.Store.CreateIssue(ctx, issuestore.CreateParams{
		Title:  "fix: " + iss.Title,
		Body:   fixBody(iss, text),
		Parent: &iss.ID,
	})
	if err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("verify: create fix child failed")
		return nil
	}
	child.IsVerifyFix = true
	if err := deps.Store.Write(ctx, child); err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("verify: persist fix child failed")
	}
	return nil
}

// fixBody composes the fix child's body: the agent's final review
// followed by a readable diff of the original issue body against that
// review, so whoever picks up the fix issue sees exactly what the
// reviewer flagged as still missing rather than just a raw transcript.
func fixBody(iss types.Issue, reviewText string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(iss.Body, reviewText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	sb.WriteString("Verification failed after exhausting retries on #")
	sb.WriteString(iss.ID)
	sb.WriteString(".\n\n## Reviewer findings\n\n")
	sb.WriteString(reviewText)
	sb.WriteString("\n\n## Diff against original acceptance criteria\n\n```\n")
	sb.WriteString(dmp.DiffPrettyText(diffs))
	sb.WriteString("\n```\n")
	return sb.String()
}

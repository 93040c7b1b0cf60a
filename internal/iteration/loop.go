// Package iteration implements the IterationLoop component from spec
// §4.8: given an issue id and a mode, it drives agent iterations to a
// terminal point, dispatching on each iteration's outcome. It is
// generalized from the teacher's session.Processor.runLoop — the same
// shape (re-read state, build a request, stream it, dispatch on what
// came back, finally persist+unlock) retargeted from a chat
// conversation loop to an issue lifecycle loop.
package iteration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vx-daniel/barf/internal/agentclient"
	"github.com/vx-daniel/barf/internal/auditgate"
	"github.com/vx-daniel/barf/internal/issue"
	"github.com/vx-daniel/barf/internal/issuestore"
	"github.com/vx-daniel/barf/internal/overflow"
	"github.com/vx-daniel/barf/internal/precomplete"
	"github.com/vx-daniel/barf/internal/sessionindex"
	"github.com/vx-daniel/barf/pkg/types"
)

// Verifier is the narrow slice of internal/verify this package needs,
// kept as an interface so iteration and verify don't import each
// other (spec §9: break cross-module cycles with a typed callback).
type Verifier interface {
	Run(ctx context.Context, issueID string) error
}

// PlanChild recurses into planning a freshly split child issue. The
// Orchestrator supplies this; iteration never imports orchestrator
// directly, again per spec §9's cross-module-cycle guidance.
type PlanChild func(ctx context.Context, childID string)

// Deps bundles the IterationLoop's external collaborators.
type Deps struct {
	Store        *issuestore.Store
	Agent        agentclient.Client
	Gate         *auditgate.Gate
	SessionIndex *sessionindex.Index
	Verify       Verifier
	PlanChild    PlanChild

	Config  types.Config
	WorkDir string
}

// statsMarker is the stdout line a parent process scrapes for live
// token totals, per spec §6's exact wire format.
type statsMarker struct {
	TotalInputTokens  int `json:"totalInputTokens"`
	TotalOutputTokens int `json:"totalOutputTokens"`
	ContextSize       int `json:"contextSize"`
	Iteration         int `json:"iteration"`
}

func emitStats(m statsMarker) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stdout, "__BARF_STATS__:%s\n", data)
}

// state is the IterationLoop's local state, one instance per Run call
// (spec §4.8 State).
type state struct {
	splitPending      bool
	model             string
	iteration         int
	iterationsRan     int
	totalInputTokens  int
	totalOutputTokens int
	lastContextSize   int
	sessionStart      time.Time
	sessionID         string
}

// Run drives issueID through agent iterations under mode until it
// reaches a terminal point, an iteration bound, or an unrecoverable
// error. The caller must already hold the issue's lock (spec §4.8
// Preconditions).
func Run(ctx context.Context, issueID string, mode types.IssueMode, deps Deps) error {
	st := &state{
		model:        defaultModelFor(mode, deps.Config),
		sessionStart: time.Now().UTC(),
		sessionID:    issueID + "-" + sessionToken(),
	}

	deps.SessionIndex.Append(types.StartEvent{
		IssueID:   issueID,
		Timestamp: st.sessionStart.Format(time.RFC3339),
		SessionID: st.sessionID,
		Pid:       os.Getpid(),
		Mode:      mode,
		Model:     st.model,
	})

	childrenToPlan, runErr := runBody(ctx, issueID, mode, deps, st)

	stats := types.SessionStats{
		StartedAt:        st.sessionStart.Format(time.RFC3339),
		DurationSeconds:  int(time.Since(st.sessionStart).Seconds()),
		InputTokens:      st.totalInputTokens,
		OutputTokens:     st.totalOutputTokens,
		FinalContextSize: st.lastContextSize,
		Iterations:       st.iterationsRan,
		Model:            st.model,
	}
	if st.iterationsRan > 0 {
		persistStats(ctx, deps, issueID, stats)
	}
	deps.SessionIndex.Append(types.EndEvent{
		IssueID:   issueID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		SessionID: st.sessionID,
		Pid:       os.Getpid(),
		Stats:     stats,
	})

	if err := deps.Store.UnlockIssue(issueID); err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("iteration: release lock failed")
	}

	// Split's child planning recurses into fresh IterationLoop calls for
	// each child, each acquiring its own lock. Spec §5 locking discipline:
	// this issue's lock must already be released before that recursion
	// starts, so it happens after the unlock above rather than inside
	// runBody.
	if len(childrenToPlan) > 0 {
		planChildren(ctx, deps, childrenToPlan)
	}

	return runErr
}

func sessionToken() string {
	return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
}

func defaultModelFor(mode types.IssueMode, cfg types.Config) string {
	switch mode {
	case types.ModePlan:
		return cfg.PlanModel
	case types.ModeSplit:
		return cfg.SplitModel
	default:
		return cfg.BuildModel
	}
}

func persistStats(ctx context.Context, deps Deps, issueID string, stats types.SessionStats) {
	iss, err := deps.Store.Fetch(ctx, issueID)
	if err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("iteration: fetch for stats persist failed")
		return
	}
	merged := issue.MergeStats(iss, stats)
	if err := deps.Store.Write(ctx, merged); err != nil {
		log.Warn().Err(err).Str("issue", issueID).Msg("iteration: persist stats failed")
	}
}

func runBody(ctx context.Context, issueID string, mode types.IssueMode, deps Deps, st *state) ([]string, error) {
	iss, err := deps.Store.Fetch(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("iteration: fetch %s: %w", issueID, err)
	}

	// 1. Initial transition.
	if mode == types.ModeBuild && iss.State == types.StatePlanned {
		next, err := deps.Store.Transition(ctx, issueID, types.StateInProgress)
		if err != nil {
			log.Warn().Err(err).Str("issue", issueID).Msg("iteration: initial transition to IN_PROGRESS failed")
		} else {
			iss = next
		}
	}

	// 2. force_split short-circuit.
	if mode == types.ModeBuild && iss.ForceSplit {
		decision := overflow.Decide(iss.SplitCount, deps.Config.MaxAutoSplits, deps.Config.SplitModel, deps.Config.ExtendedContextModel)
		iss.ForceSplit = false
		if decision.Action == overflow.ActionSplit {
			st.splitPending = true
			st.model = decision.NextModel
			iss.SplitCount++
		} else {
			st.model = decision.NextModel
		}
		if err := deps.Store.Write(ctx, iss); err != nil {
			log.Warn().Err(err).Str("issue", issueID).Msg("iteration: persist force_split clear failed")
		}
	}

	maxIterations := deps.Config.MaxIterations

	for maxIterations == 0 || st.iteration < maxIterations {
		iss, err = deps.Store.Fetch(ctx, issueID)
		if err != nil {
			return nil, fmt.Errorf("iteration: re-read %s: %w", issueID, err)
		}
		if iss.State == types.StateCompleted || iss.State == types.StateVerified {
			break
		}

		currentMode := mode
		if st.splitPending {
			currentMode = types.ModeSplit
		}

		prompt, err := composePrompt(deps.Config.PromptDir, currentMode, deps.Config.IssuesDir, deps.Config.PlanDir, issueID, st.iteration)
		if err != nil {
			return nil, fmt.Errorf("iteration: compose prompt: %w", err)
		}

		percent := deps.Config.ContextUsagePercent
		if iss.ContextUsagePercent != nil {
			percent = *iss.ContextUsagePercent
		}

		iterCtx := ctx
		var cancel context.CancelFunc
		if deps.Config.ClaudeTimeout > 0 {
			iterCtx, cancel = context.WithTimeout(ctx, time.Duration(deps.Config.ClaudeTimeout)*time.Second)
		}

		st.iterationsRan++
		stream, err := deps.Agent.Run(iterCtx, agentclient.Request{Prompt: prompt, Model: st.model})
		if err != nil {
			if cancel != nil {
				cancel()
			}
			return nil, fmt.Errorf("iteration: start agent run: %w", err)
		}

		result := Consume(iterCtx, stream, st.model, percent, nil)
		if cancel != nil {
			cancel()
		}

		st.totalInputTokens += result.Usage.InputTokens
		st.totalOutputTokens += result.Usage.OutputTokens
		st.lastContextSize = result.Tokens
		emitStats(statsMarker{
			TotalInputTokens:  st.totalInputTokens,
			TotalOutputTokens: st.totalOutputTokens,
			ContextSize:       st.lastContextSize,
			Iteration:         st.iteration,
		})

		// Dispatch table.
		if st.splitPending {
			st.splitPending = false
			if iss.State != types.StateSplit {
				next, err := deps.Store.Transition(ctx, issueID, types.StateSplit)
				if err != nil {
					log.Warn().Err(err).Str("issue", issueID).Msg("iteration: transition to SPLIT failed")
				} else {
					iss = next
				}
			}
			if len(iss.Children) > 0 {
				return iss.Children, nil
			}
			break
		}

		switch result.Outcome {
		case OutcomeOverflow:
			decision := overflow.Decide(iss.SplitCount, deps.Config.MaxAutoSplits, deps.Config.SplitModel, deps.Config.ExtendedContextModel)
			iss.SplitCount++
			if decision.Action == overflow.ActionSplit {
				st.splitPending = true
			}
			st.model = decision.NextModel
			if err := deps.Store.Write(ctx, iss); err != nil {
				log.Warn().Err(err).Str("issue", issueID).Msg("iteration: persist overflow split_count failed")
			}
			st.iteration++
			continue
		case OutcomeRateLimited:
			return nil, &RateLimitedError{ResetAt: result.ResetAt}
		case OutcomeError:
			log.Error().Err(result.Err).Str("issue", issueID).Msg("iteration: agent run failed")
			return nil, nil
		}

		// outcome == success
		if currentMode == types.ModePlan {
			if deps.Store.HasPlan(issueID) {
				if _, err := deps.Store.Transition(ctx, issueID, types.StatePlanned); err != nil {
					log.Warn().Err(err).Str("issue", issueID).Msg("iteration: transition to PLANNED failed")
				}
			}
			break
		}

		// currentMode == build
		met, err := deps.Store.CheckAcceptanceCriteria(ctx, issueID)
		if err != nil {
			log.Warn().Err(err).Str("issue", issueID).Msg("iteration: check acceptance criteria failed")
		}
		if met {
			gate := precomplete.Gate{WorkDir: deps.WorkDir, FixCommands: deps.Config.FixCommands, TestCommand: deps.Config.TestCommand}
			gateResult, err := gate.Run(ctx)
			if err != nil {
				log.Warn().Err(err).Str("issue", issueID).Msg("iteration: pre-complete gate errored")
			} else if gateResult.Passed {
				if _, err := deps.Store.Transition(ctx, issueID, types.StateCompleted); err != nil {
					log.Warn().Err(err).Str("issue", issueID).Msg("iteration: transition to COMPLETED failed")
				} else {
					if _, err := deps.Gate.IncrementCompleted(); err != nil {
						log.Warn().Err(err).Msg("iteration: audit gate increment_completed failed")
					}
					if deps.Verify != nil {
						if err := deps.Verify.Run(ctx, issueID); err != nil {
							log.Warn().Err(err).Str("issue", issueID).Msg("iteration: verify failed")
						}
					}
				}
				break
			}
		}
		st.iteration++
	}

	return nil, nil
}

func planChildren(ctx context.Context, deps Deps, children []string) {
	for _, childID := range children {
		child, err := deps.Store.Fetch(ctx, childID)
		if err != nil {
			log.Warn().Err(err).Str("issue", childID).Msg("iteration: fetch child for planning failed")
			continue
		}
		if child.State != types.StateNew {
			continue
		}
		if deps.PlanChild != nil {
			deps.PlanChild(ctx, childID)
		}
	}
}

// RateLimitedError fails an IterationLoop call with the provider's
// reported retry time (spec §4.8 dispatch table: "Fail the loop with
// an error carrying the reset time").
type RateLimitedError struct {
	ResetAt *string
}

func (e *RateLimitedError) Error() string {
	if e.ResetAt != nil {
		return fmt.Sprintf("iteration: rate limited, resets at %s", *e.ResetAt)
	}
	return "iteration: rate limited"
}

// Package orchestrator implements spec §2 component 10: select the
// next eligible issue, check audit-gate admission, acquire its lock,
// and drive it through IterationLoop — plus the project-wide audit
// cycle (draining -> auditing -> fixing -> running) that IterationLoop
// itself knows nothing about. Recursion into freshly split children is
// closed over here (spec §9 "cross-module cycles... place both in a
// single module that owns the recursion"): IterationLoop calls back
// into Orchestrator.planChild rather than importing this package.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/vx-daniel/barf/internal/agentclient"
	"github.com/vx-daniel/barf/internal/auditgate"
	"github.com/vx-daniel/barf/internal/issuestore"
	"github.com/vx-daniel/barf/internal/iteration"
	"github.com/vx-daniel/barf/internal/lock"
	"github.com/vx-daniel/barf/internal/sessionindex"
	"github.com/vx-daniel/barf/internal/triage"
	"github.com/vx-daniel/barf/internal/verify"
	"github.com/vx-daniel/barf/pkg/types"
)

// Auditor performs the audit-gate's external audit phase: it reviews
// completed work and returns the set of fix issues to file (or none,
// if it found nothing). Like AgentClient and
// IssueStore, the concrete reviewer is an external collaborator
// described only by this interface (spec §2 component 9: "runs an
// external audit").
type Auditor interface {
	Audit(ctx context.Context) ([]issuestore.CreateParams, error)
}

// Orchestrator owns one project's selection loop, audit-gate cycle,
// and split-child recursion.
type Orchestrator struct {
	Store        *issuestore.Store
	Agent        agentclient.Client
	Gate         *auditgate.Gate
	SessionIndex *sessionindex.Index
	Auditor      Auditor

	Config  types.Config
	WorkDir string

	verifier iteration.Verifier
}

// New builds an Orchestrator. auditor may be nil: with no auditor
// configured, an auditing-state tick resets straight back to running,
// the same as an audit that found nothing.
func New(cfg types.Config, workDir string, store *issuestore.Store, agent agentclient.Client, auditor Auditor) *Orchestrator {
	o := &Orchestrator{
		Store:        store,
		Agent:        agent,
		Gate:         auditgate.New(cfg.BarfDir),
		SessionIndex: sessionindex.New(cfg.BarfDir),
		Auditor:      auditor,
		Config:       cfg,
		WorkDir:      workDir,
	}
	o.verifier = verifyRunner{deps: verify.Deps{
		Store:      store,
		Agent:      agent,
		Model:      cfg.BuildModel,
		MaxRetries: cfg.MaxVerifyRetries,
	}}
	return o
}

// verifyRunner adapts verify.Run's free function to the iteration.Verifier
// interface IterationLoop depends on.
type verifyRunner struct{ deps verify.Deps }

func (v verifyRunner) Run(ctx context.Context, issueID string) error {
	return verify.Run(ctx, issueID, v.deps)
}

func (o *Orchestrator) deps() iteration.Deps {
	return iteration.Deps{
		Store:        o.Store,
		Agent:        o.Agent,
		Gate:         o.Gate,
		SessionIndex: o.SessionIndex,
		Verify:       o.verifier,
		PlanChild:    o.planChild,
		Config:       o.Config,
		WorkDir:      o.WorkDir,
	}
}

// planChild is the PlanChild callback IterationLoop invokes once per
// freshly split NEW child (spec §4.8 "Recursion"). A lock conflict or
// fetch failure is logged, never propagated — a child's plan failure
// must not abort the parent's already-completed split (spec §4.8:
// "A child's plan failure is logged, not propagated").
func (o *Orchestrator) planChild(ctx context.Context, childID string) {
	child, err := o.Store.Fetch(ctx, childID)
	if err != nil {
		log.Warn().Err(err).Str("issue", childID).Msg("orchestrator: fetch child for planning failed")
		return
	}
	res, err := o.Store.LockIssue(childID, types.ModePlan, child.State)
	if err != nil {
		log.Warn().Err(err).Str("issue", childID).Msg("orchestrator: lock child for planning failed")
		return
	}
	if res.Outcome == lock.Busy {
		log.Warn().Str("issue", childID).Msg("orchestrator: child already locked, skipping plan")
		return
	}
	if err := iteration.Run(ctx, childID, types.ModePlan, o.deps()); err != nil {
		log.Warn().Err(err).Str("issue", childID).Msg("orchestrator: plan child failed")
	}
}

// RunOnce selects one eligible issue for mode, acquires its lock, and
// drives it through IterationLoop. ran is false when no eligible issue
// was available or every candidate's lock was busy.
func (o *Orchestrator) RunOnce(ctx context.Context, mode types.IssueMode) (ran bool, err error) {
	iss, ok, err := o.acquireNext(ctx, mode)
	if err != nil {
		return false, fmt.Errorf("orchestrator: select next %s issue: %w", mode, err)
	}
	if !ok {
		return false, nil
	}
	if err := iteration.Run(ctx, iss.ID, mode, o.deps()); err != nil {
		return true, err
	}
	return true, nil
}

// acquireNext walks issues in creation order (matching
// issuestore.Store.AutoSelect's ordering) looking for the first one
// eligible for mode, admitted by the current audit gate, and not
// locked by another process. A NEW issue awaiting plan whose triage
// classification is still unknown is triaged inline before being
// offered for planning; one that comes back needing an interview is
// skipped rather than planned blind.
func (o *Orchestrator) acquireNext(ctx context.Context, mode types.IssueMode) (types.Issue, bool, error) {
	issues, err := o.Store.ListIssues(ctx)
	if err != nil {
		return types.Issue{}, false, err
	}
	gate, err := o.Gate.Read()
	if err != nil {
		return types.Issue{}, false, err
	}
	lookup := o.lookupFor(issues)

	for _, iss := range issues {
		if !eligible(mode, iss) {
			continue
		}
		if !auditgate.Admits(gate, iss.ID, lookup) {
			continue
		}

		if mode == types.ModePlan && iss.NeedsInterview == nil {
			triage.Run(ctx, iss.ID, triage.Deps{Store: o.Store, Agent: o.Agent, Model: o.Config.TriageModel})
			refetched, err := o.Store.Fetch(ctx, iss.ID)
			if err == nil {
				iss = refetched
			}
			if iss.NeedsInterview != nil && *iss.NeedsInterview {
				continue
			}
		}

		res, err := o.Store.LockIssue(iss.ID, mode, iss.State)
		if err != nil {
			return types.Issue{}, false, err
		}
		if res.Outcome == lock.Busy {
			continue
		}
		return iss, true, nil
	}
	return types.Issue{}, false, nil
}

func eligible(mode types.IssueMode, iss types.Issue) bool {
	switch mode {
	case types.ModePlan:
		return iss.State == types.StateNew
	case types.ModeBuild:
		return iss.State == types.StatePlanned || iss.State == types.StateInProgress
	default:
		return false
	}
}

// lookupFor builds the auditgate.IssueLookup closure Admits needs to
// walk parent chains, from one already-loaded issue list so fixing-
// state admission doesn't re-read the store per ancestor hop.
func (o *Orchestrator) lookupFor(issues []types.Issue) auditgate.IssueLookup {
	byID := make(map[string]types.Issue, len(issues))
	for _, iss := range issues {
		byID[iss.ID] = iss
	}
	return func(id string) (*string, bool, bool, bool) {
		iss, ok := byID[id]
		if !ok {
			return nil, false, false, false
		}
		return iss.Parent, iss.IsVerifyFix, false, true
	}
}

// Tick runs one scheduling step: ordinary build/plan admission while
// running, or one step of the audit-gate cycle otherwise. ran reports
// whether it did anything, so RunForever can keep its idle backoff
// short while real progress is happening.
func (o *Orchestrator) Tick(ctx context.Context) (ran bool, err error) {
	gate, err := o.Gate.Read()
	if err != nil {
		return false, err
	}

	switch gate.State {
	case types.AuditDraining:
		// A single orchestrator process never has an iteration running
		// concurrently with Tick, so by the time Tick observes draining
		// there is nothing left in flight to wait for.
		if _, err := o.Gate.TransitionToAuditing(); err != nil {
			return false, err
		}
		return true, o.runAudit(ctx)
	case types.AuditAuditing:
		return true, o.runAudit(ctx)
	case types.AuditFixing:
		return o.tickFixing(ctx)
	}

	return o.tickRunning(ctx)
}

func (o *Orchestrator) tickRunning(ctx context.Context) (bool, error) {
	ran, err := o.RunOnce(ctx, types.ModeBuild)
	if err != nil {
		return ran, err
	}
	if !ran {
		ran, err = o.RunOnce(ctx, types.ModePlan)
		if err != nil {
			return ran, err
		}
	}

	gate, err := o.Gate.Read()
	if err != nil {
		return ran, err
	}
	if auditgate.CheckAutoTrigger(gate, o.Config.AuditAfterNCompleted) {
		if _, _, err := o.Gate.Trigger(types.TriggerAuto); err != nil {
			return ran, err
		}
	}
	return ran, nil
}

func (o *Orchestrator) tickFixing(ctx context.Context) (bool, error) {
	ran, err := o.RunOnce(ctx, types.ModeBuild)
	if err != nil {
		return ran, err
	}
	if !ran {
		ran, err = o.RunOnce(ctx, types.ModePlan)
		if err != nil {
			return ran, err
		}
	}

	gate, err := o.Gate.Read()
	if err != nil {
		return ran, err
	}
	resolved, err := o.fixIssuesResolved(ctx, gate.AuditFixIssueIDs)
	if err != nil {
		return ran, err
	}
	if resolved {
		if _, err := o.Gate.Reset(); err != nil {
			return ran, err
		}
	}
	return ran, nil
}

func (o *Orchestrator) fixIssuesResolved(ctx context.Context, ids []string) (bool, error) {
	for _, id := range ids {
		resolved, err := o.issueResolved(ctx, id)
		if err != nil {
			return false, err
		}
		if !resolved {
			return false, nil
		}
	}
	return true, nil
}

// issueResolved reports whether a fix issue (or its full split
// lineage) has reached a terminal, successful state. A SPLIT fix issue
// is resolved only once every child it produced is itself resolved.
func (o *Orchestrator) issueResolved(ctx context.Context, id string) (bool, error) {
	iss, err := o.Store.Fetch(ctx, id)
	if err != nil {
		return false, err
	}
	switch iss.State {
	case types.StateVerified:
		return true, nil
	case types.StateSplit:
		return o.fixIssuesResolved(ctx, iss.Children)
	default:
		return false, nil
	}
}

func (o *Orchestrator) runAudit(ctx context.Context) error {
	if o.Auditor == nil {
		_, err := o.Gate.Reset()
		return err
	}
	findings, err := o.Auditor.Audit(ctx)
	if err != nil {
		log.Error().Err(err).Msg("orchestrator: audit failed, retrying next tick")
		return nil
	}
	if len(findings) == 0 {
		_, err := o.Gate.Reset()
		return err
	}

	ids := make([]string, 0, len(findings))
	for _, params := range findings {
		child, err := o.Store.CreateIssue(ctx, params)
		if err != nil {
			log.Warn().Err(err).Msg("orchestrator: create audit fix issue failed")
			continue
		}
		child.IsVerifyFix = true
		if err := o.Store.Write(ctx, child); err != nil {
			log.Warn().Err(err).Str("issue", child.ID).Msg("orchestrator: mark audit fix issue failed")
		}
		ids = append(ids, child.ID)
	}
	_, err = o.Gate.TransitionToFixing(ids)
	return err
}

// RunForever drives Tick until ctx is cancelled. Idle ticks (nothing
// eligible to run) back off with jitter via cenkalti/backoff so an
// empty project doesn't spin; a rate-limited iteration instead idles
// until the provider's reported reset time before retrying.
func (o *Orchestrator) RunForever(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ran, err := o.Tick(ctx)
		if err != nil {
			var rl *iteration.RateLimitedError
			if errors.As(err, &rl) {
				log.Warn().Msg(rl.Error())
				if !sleepCtx(ctx, rateLimitWait(rl)) {
					return ctx.Err()
				}
				continue
			}
			return fmt.Errorf("orchestrator: tick: %w", err)
		}

		if ran {
			bo.Reset()
			continue
		}
		if !sleepCtx(ctx, bo.NextBackOff()) {
			return ctx.Err()
		}
	}
}

const defaultRateLimitWait = 60 * time.Second

func rateLimitWait(rl *iteration.RateLimitedError) time.Duration {
	if rl.ResetAt == nil {
		return defaultRateLimitWait
	}
	resetAt, err := time.Parse(time.RFC3339, *rl.ResetAt)
	if err != nil {
		return defaultRateLimitWait
	}
	wait := time.Until(resetAt)
	if wait <= 0 {
		return time.Second
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

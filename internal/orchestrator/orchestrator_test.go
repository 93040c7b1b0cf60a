package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-daniel/barf/internal/agentclient"
	"github.com/vx-daniel/barf/internal/issuestore"
	"github.com/vx-daniel/barf/pkg/types"
)

type stubAuditor struct {
	findings []issuestore.CreateParams
	err      error
	calls    int
}

func (s *stubAuditor) Audit(ctx context.Context) ([]issuestore.CreateParams, error) {
	s.calls++
	return s.findings, s.err
}

func newHarness(t *testing.T, agent agentclient.Client, auditor Auditor) (*issuestore.Store, *Orchestrator) {
	t.Helper()
	root := t.TempDir()
	issuesDir := filepath.Join(root, "issues")
	planDir := filepath.Join(root, "plans")
	barfDir := filepath.Join(root, ".barf")
	promptDir := filepath.Join(root, "prompts")

	require.NoError(t, os.MkdirAll(promptDir, 0o755))
	for _, mode := range []string{"plan", "build", "split"} {
		require.NoError(t, os.WriteFile(filepath.Join(promptDir, mode+".md"), []byte(mode+" {{.IssueID}}"), 0o644))
	}

	store := issuestore.New(issuesDir, planDir, barfDir)
	cfg := types.DefaultConfig()
	cfg.IssuesDir = issuesDir
	cfg.PlanDir = planDir
	cfg.BarfDir = barfDir
	cfg.PromptDir = promptDir
	cfg.ClaudeTimeout = 0

	o := New(cfg, root, store, agent, auditor)
	return store, o
}

func TestRunOnceSelectsAndPlans(t *testing.T) {
	ctx := context.Background()
	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeSuccess, Text: "OK"}}}
	store, o := newHarness(t, mock, nil)

	iss, err := store.CreateIssue(ctx, issuestore.CreateParams{Title: "a", Body: "clear work"})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(o.Config.PlanDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(o.Config.PlanDir, iss.ID+".md"), []byte("plan"), 0o644))

	ran, err := o.RunOnce(ctx, types.ModePlan)
	require.NoError(t, err)
	assert.True(t, ran)

	final, err := store.Fetch(ctx, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatePlanned, final.State)
}

func TestRunOnceSkipsIssueNeedingInterview(t *testing.T) {
	ctx := context.Background()
	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeSuccess, Text: "NEEDS_INTERVIEW"}}}
	store, o := newHarness(t, mock, nil)

	_, err := store.CreateIssue(ctx, issuestore.CreateParams{Title: "vague", Body: "do something"})
	require.NoError(t, err)

	ran, err := o.RunOnce(ctx, types.ModePlan)
	require.NoError(t, err)
	assert.False(t, ran, "vague issue should be triaged then skipped, not planned")
}

func TestRunOnceNoEligibleIssue(t *testing.T) {
	ctx := context.Background()
	mock := &agentclient.MockClient{}
	_, o := newHarness(t, mock, nil)

	ran, err := o.RunOnce(ctx, types.ModeBuild)
	require.NoError(t, err)
	assert.False(t, ran)
}

// S6: audit-gate full cycle driven by Tick — trigger, drain into
// auditing, findings produce a fixing cycle, resolving the fix issue
// resets the gate back to running.
func TestTickDrivesFullAuditCycle(t *testing.T) {
	ctx := context.Background()
	mock := &agentclient.MockClient{}
	store, o := newHarness(t, mock, &stubAuditor{findings: []issuestore.CreateParams{{Title: "fix: regression"}}})

	_, took, err := o.Gate.Trigger(types.TriggerDashboard)
	require.NoError(t, err)
	require.True(t, took)

	gate, err := o.Gate.Read()
	require.NoError(t, err)
	assert.Equal(t, types.AuditDraining, gate.State)

	// First tick: draining -> auditing -> runAudit files the fix issue -> fixing.
	_, err = o.Tick(ctx)
	require.NoError(t, err)
	gate, err = o.Gate.Read()
	require.NoError(t, err)
	require.Equal(t, types.AuditFixing, gate.State)
	require.Len(t, gate.AuditFixIssueIDs, 1)

	fixID := gate.AuditFixIssueIDs[0]
	fixIssue, err := store.Fetch(ctx, fixID)
	require.NoError(t, err)
	assert.True(t, fixIssue.IsVerifyFix)

	// Resolve the fix issue out of band, then tick again: fixing -> running.
	_, err = store.Transition(ctx, fixID, types.StatePlanned)
	require.NoError(t, err)
	_, err = store.Transition(ctx, fixID, types.StateInProgress)
	require.NoError(t, err)
	_, err = store.Transition(ctx, fixID, types.StateCompleted)
	require.NoError(t, err)
	_, err = store.Transition(ctx, fixID, types.StateVerified)
	require.NoError(t, err)

	_, err = o.Tick(ctx)
	require.NoError(t, err)
	gate, err = o.Gate.Read()
	require.NoError(t, err)
	assert.Equal(t, types.AuditRunning, gate.State)
	assert.Equal(t, 0, gate.CompletedSinceLastAudit)
}

func TestTickNoAuditorResetsFromAuditing(t *testing.T) {
	ctx := context.Background()
	mock := &agentclient.MockClient{}
	_, o := newHarness(t, mock, nil)

	_, took, err := o.Gate.Trigger(types.TriggerCLI)
	require.NoError(t, err)
	require.True(t, took)

	_, err = o.Tick(ctx) // draining -> auditing -> reset (no auditor)
	require.NoError(t, err)

	gate, err := o.Gate.Read()
	require.NoError(t, err)
	assert.Equal(t, types.AuditRunning, gate.State)
}

func TestTickAutoTriggersAudit(t *testing.T) {
	ctx := context.Background()
	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeSuccess, Text: "OK " + "VERIFY_PASS"}}}
	store, o := newHarness(t, mock, nil)
	o.Config.AuditAfterNCompleted = 1
	o.Config.TestCommand = ""

	iss, err := store.CreateIssue(ctx, issuestore.CreateParams{Title: "a"})
	require.NoError(t, err)
	_, err = store.Transition(ctx, iss.ID, types.StatePlanned)
	require.NoError(t, err)

	ran, err := o.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	gate, err := o.Gate.Read()
	require.NoError(t, err)
	assert.Equal(t, types.AuditDraining, gate.State)
}

package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-daniel/barf/internal/agentclient"
	"github.com/vx-daniel/barf/internal/issuestore"
	"github.com/vx-daniel/barf/pkg/types"
)

func newStore(t *testing.T) *issuestore.Store {
	t.Helper()
	root := t.TempDir()
	return issuestore.New(filepath.Join(root, "issues"), filepath.Join(root, "plans"), filepath.Join(root, ".barf"))
}

func completedIssue(t *testing.T, store *issuestore.Store) types.Issue {
	t.Helper()
	ctx := context.Background()
	iss, err := store.CreateIssue(ctx, issuestore.CreateParams{Title: "build the thing"})
	require.NoError(t, err)
	for _, s := range []types.IssueState{types.StatePlanned, types.StateInProgress, types.StateCompleted} {
		iss, err = store.Transition(ctx, iss.ID, s)
		require.NoError(t, err)
	}
	return iss
}

func TestAuditCleanReturnsNoFindings(t *testing.T) {
	store := newStore(t)
	completedIssue(t, store)

	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeSuccess, Text: noFindingsMarker}}}
	a := New(Deps{Store: store, Agent: mock, Model: "m"})

	findings, err := a.Audit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestAuditParsesMultipleFindings(t *testing.T) {
	store := newStore(t)
	completedIssue(t, store)

	reply := "Title: missing error check\nthe new path ignores a write error" +
		findingSeparator +
		"Title: stale comment\nthe doc comment references removed behavior"
	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeSuccess, Text: reply}}}
	a := New(Deps{Store: store, Agent: mock, Model: "m"})

	findings, err := a.Audit(context.Background())
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "audit: missing error check", findings[0].Title)
	assert.Equal(t, "audit: stale comment", findings[1].Title)
}

func TestAuditNoCompletedIssuesSkipsAgentCall(t *testing.T) {
	store := newStore(t)
	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeError}}}
	a := New(Deps{Store: store, Agent: mock, Model: "m"})

	findings, err := a.Audit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

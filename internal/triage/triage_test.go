package triage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-daniel/barf/internal/agentclient"
	"github.com/vx-daniel/barf/internal/issuestore"
)

func newStore(t *testing.T) *issuestore.Store {
	t.Helper()
	root := t.TempDir()
	return issuestore.New(filepath.Join(root, "issues"), filepath.Join(root, "plans"), filepath.Join(root, ".barf"))
}

func TestRunClassifiesNeedsInterview(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	iss, err := store.CreateIssue(ctx, issuestore.CreateParams{Title: "vague", Body: "make it better somehow"})
	require.NoError(t, err)

	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeSuccess, Text: "reply: " + needsInterviewMarker}}}
	Run(ctx, iss.ID, Deps{Store: store, Agent: mock, Model: "m"})

	final, err := store.Fetch(ctx, iss.ID)
	require.NoError(t, err)
	require.NotNil(t, final.NeedsInterview)
	assert.True(t, *final.NeedsInterview)
}

func TestRunClassifiesReady(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	iss, err := store.CreateIssue(ctx, issuestore.CreateParams{Title: "clear", Body: "rename foo to bar in pkg x"})
	require.NoError(t, err)

	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeSuccess, Text: "OK"}}}
	Run(ctx, iss.ID, Deps{Store: store, Agent: mock, Model: "m"})

	final, err := store.Fetch(ctx, iss.ID)
	require.NoError(t, err)
	require.NotNil(t, final.NeedsInterview)
	assert.False(t, *final.NeedsInterview)
}

func TestRunLeavesNeedsInterviewUnsetOnAgentFailure(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	iss, err := store.CreateIssue(ctx, issuestore.CreateParams{Title: "x"})
	require.NoError(t, err)

	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeError}}}
	Run(ctx, iss.ID, Deps{Store: store, Agent: mock, Model: "m"})

	final, err := store.Fetch(ctx, iss.ID)
	require.NoError(t, err)
	assert.Nil(t, final.NeedsInterview)
}

package verify

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
	iss, err := store.CreateIssue(ctx, issuestore.CreateParams{Title: "t", Body: "do the thing"})
	require.NoError(t, err)
	_, err = store.Transition(ctx, iss.ID, types.StatePlanned)
	require.NoError(t, err)
	_, err = store.Transition(ctx, iss.ID, types.StateInProgress)
	require.NoError(t, err)
	final, err := store.Transition(ctx, iss.ID, types.StateCompleted)
	require.NoError(t, err)
	return final
}

func TestRunPassTransitionsToVerified(t *testing.T) {
	store := newStore(t)
	iss := completedIssue(t, store)

	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeSuccess, Text: "looks good, " + passMarker}}}

	err := Run(context.Background(), iss.ID, Deps{Store: store, Agent: mock, Model: "m", MaxRetries: 3})
	require.NoError(t, err)

	final, err := store.Fetch(context.Background(), iss.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateVerified, final.State)
	assert.Equal(t, 0, final.VerifyCount)
}

func TestRunFailureReopensUntilExhausted(t *testing.T) {
	store := newStore(t)
	iss := completedIssue(t, store)

	mock := &agentclient.MockClient{Steps: []agentclient.MockStep{{Outcome: agentclient.OutcomeSuccess, Text: "missing the edge case"}}}
	deps := Deps{Store: store, Agent: mock, Model: "m", MaxRetries: 2}

	require.NoError(t, Run(context.Background(), iss.ID, deps))
	reopened, err := store.Fetch(context.Background(), iss.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateInProgress, reopened.State)
	assert.Equal(t, 1, reopened.VerifyCount)
	assert.False(t, reopened.VerifyExhausted)

	// Drive back to COMPLETED and fail verify a second time: retries exhausted.
	_, err = store.Transition(context.Background(), iss.ID, types.StateCompleted)
	require.NoError(t, err)
	require.NoError(t, Run(context.Background(), iss.ID, deps))

	final, err := store.Fetch(context.Background(), iss.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, final.State)
	assert.True(t, final.VerifyExhausted)
	assert.Equal(t, 2, final.VerifyCount)

	issues, err := store.ListIssues(context.Background())
	require.NoError(t, err)
	var child *types.Issue
	for i := range issues {
		if issues[i].Parent != nil && *issues[i].Parent == iss.ID {
			child = &issues[i]
		}
	}
	require.NotNil(t, child, "expected a fix child issue to be filed")
	assert.True(t, child.IsVerifyFix)
}

func TestRunNoOpOnNonCompletedIssue(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	iss, err := store.CreateIssue(ctx, issuestore.CreateParams{Title: "t"})
	require.NoError(t, err)

	mock := &agentclient.MockClient{}
	require.NoError(t, Run(ctx, iss.ID, Deps{Store: store, Agent: mock, Model: "m", MaxRetries: 3}))
	assert.Empty(t, mock.Calls)
}

package issuestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-daniel/barf/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "issues"), filepath.Join(dir, "plans"), filepath.Join(dir, ".barf"))
}

func TestCreateFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	iss, err := s.CreateIssue(ctx, CreateParams{Title: "add retry", Body: "do the thing"})
	require.NoError(t, err)
	assert.Equal(t, types.StateNew, iss.State)

	got, err := s.Fetch(ctx, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, "add retry", got.Title)
	assert.Equal(t, "do the thing", got.Body)
}

func TestCreateIssueLinksParent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	parent, err := s.CreateIssue(ctx, CreateParams{Title: "parent"})
	require.NoError(t, err)

	child, err := s.CreateIssue(ctx, CreateParams{Title: "child", Parent: &parent.ID})
	require.NoError(t, err)

	reloadedParent, err := s.Fetch(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{child.ID}, reloadedParent.Children)
}

func TestTransitionRejectsInvalidMove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	iss, err := s.CreateIssue(ctx, CreateParams{Title: "x"})
	require.NoError(t, err)

	_, err = s.Transition(ctx, iss.ID, types.StateVerified)
	assert.Error(t, err)

	next, err := s.Transition(ctx, iss.ID, types.StatePlanned)
	require.NoError(t, err)
	assert.Equal(t, types.StatePlanned, next.State)
}

func TestCheckAcceptanceCriteria(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	withNone, err := s.CreateIssue(ctx, CreateParams{Title: "none", Body: "no criteria here"})
	require.NoError(t, err)
	ok, err := s.CheckAcceptanceCriteria(ctx, withNone.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	unmet, err := s.CreateIssue(ctx, CreateParams{Title: "unmet", Body: "## Acceptance Criteria\n- [ ] does the thing\n- [x] other thing\n"})
	require.NoError(t, err)
	ok, err = s.CheckAcceptanceCriteria(ctx, unmet.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	met, err := s.CreateIssue(ctx, CreateParams{Title: "met", Body: "## Acceptance Criteria\n- [x] does the thing\n- [x] other thing\n"})
	require.NoError(t, err)
	ok, err = s.CheckAcceptanceCriteria(ctx, met.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAutoSelectPrefersOldestEligible(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.CreateIssue(ctx, CreateParams{Title: "first"})
	require.NoError(t, err)
	_, err = s.CreateIssue(ctx, CreateParams{Title: "second"})
	require.NoError(t, err)

	id, err := s.AutoSelect(ctx, types.ModePlan)
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)

	_, err = s.Transition(ctx, first.ID, types.StatePlanned)
	require.NoError(t, err)

	buildID, err := s.AutoSelect(ctx, types.ModeBuild)
	require.NoError(t, err)
	assert.Equal(t, first.ID, buildID)
}

func TestAutoSelectNoneAvailable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.AutoSelect(ctx, types.ModeBuild)
	assert.ErrorIs(t, err, ErrNoIssueAvailable)
}

func TestLockUnlock(t *testing.T) {
	s := newTestStore(t)

	res, err := s.LockIssue("abc", types.ModeBuild, types.StatePlanned)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(res.Outcome))

	res2, err := s.LockIssue("abc", types.ModeBuild, types.StatePlanned)
	require.NoError(t, err)
	assert.Equal(t, "busy", string(res2.Outcome))

	require.NoError(t, s.UnlockIssue("abc"))

	res3, err := s.LockIssue("abc", types.ModeBuild, types.StatePlanned)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(res3.Outcome))
}

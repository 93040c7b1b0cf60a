package sessionindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-daniel/barf/pkg/types"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	idx := New(dir)

	idx.Append(types.StartEvent{IssueID: "001", Timestamp: "t1", SessionID: "s1", Pid: 1, Mode: types.ModeBuild, Model: "claude-sonnet-4-6"})
	idx.Append(types.EndEvent{IssueID: "001", Timestamp: "t2", SessionID: "s1", Pid: 1, Stats: types.SessionStats{Iterations: 2}})

	events, err := idx.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 2)

	start, ok := events[0].(types.StartEvent)
	require.True(t, ok)
	assert.Equal(t, "001", start.IssueID)

	end, ok := events[1].(types.EndEvent)
	require.True(t, ok)
	assert.Equal(t, 2, end.Stats.Iterations)

	_, err = filepath.Abs(dir)
	require.NoError(t, err)
}

func TestReadAllMissingFile(t *testing.T) {
	idx := New(t.TempDir())
	events, err := idx.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, events)
}

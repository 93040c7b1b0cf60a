package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-daniel/barf/internal/event"
)

func TestWatcherPublishesConfigChanged(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	barfDir := filepath.Join(dir, ".barf")
	require.NoError(t, os.MkdirAll(barfDir, 0755))
	configPath := filepath.Join(barfDir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0644))

	received := make(chan event.ConfigChangedData, 1)
	unsubscribe := event.Subscribe(event.ConfigChanged, func(e event.Event) {
		if data, ok := e.Data.(event.ConfigChangedData); ok {
			select {
			case received <- data:
			default:
			}
		}
	})
	defer unsubscribe()

	w, err := NewWatcher(dir, filepath.Join(dir, "issues"))
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(configPath, []byte(`{"testCommand": "make test"}`), 0644))

	select {
	case data := <-received:
		assert.Equal(t, configPath, data.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("expected config.changed event")
	}
}

func TestWatcherPublishesIssueExternalEdit(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	issuesDir := filepath.Join(dir, "issues")
	require.NoError(t, os.MkdirAll(issuesDir, 0755))
	issuePath := filepath.Join(issuesDir, "iss-1.md")
	require.NoError(t, os.WriteFile(issuePath, []byte("---\nstate: new\n---\nbody"), 0644))

	received := make(chan event.IssueExternalEditData, 1)
	unsubscribe := event.Subscribe(event.IssueExternalEdit, func(e event.Event) {
		if data, ok := e.Data.(event.IssueExternalEditData); ok {
			select {
			case received <- data:
			default:
			}
		}
	})
	defer unsubscribe()

	w, err := NewWatcher(dir, issuesDir)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(issuePath, []byte("---\nstate: planned\n---\nbody"), 0644))

	select {
	case data := <-received:
		assert.Equal(t, "iss-1", data.IssueID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected issue.external_change event")
	}
}

func TestWatcherStartStopIsClean(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	w, err := NewWatcher(dir, filepath.Join(dir, "issues"))
	require.NoError(t, err)
	w.Start()
	w.Stop()
}

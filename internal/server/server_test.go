package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-daniel/barf/internal/auditgate"
	"github.com/vx-daniel/barf/internal/issuestore"
	"github.com/vx-daniel/barf/internal/sessionindex"
	"github.com/vx-daniel/barf/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *issuestore.Store) {
	t.Helper()
	root := t.TempDir()
	store := issuestore.New(filepath.Join(root, "issues"), filepath.Join(root, "plans"), filepath.Join(root, ".barf"))
	gate := auditgate.New(filepath.Join(root, ".barf"))
	idx := sessionindex.New(filepath.Join(root, ".barf"))
	return New(DefaultConfig(), store, gate, idx), store
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAndGetIssue(t *testing.T) {
	srv, store := newTestServer(t)
	iss, err := store.CreateIssue(context.Background(), issuestore.CreateParams{Title: "hello"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/issues", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listBody struct {
		Issues []map[string]any `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	require.Len(t, listBody.Issues, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/issues/"+iss.ID, nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetIssueNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/issues/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAuditGate(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/audit-gate", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var gate struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gate))
	assert.Equal(t, "running", gate.State)
}

func TestListSessionsRespectsLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	for i := 0; i < 7; i++ {
		srv.sessionIndex.Append(types.AutoStartEvent{Timestamp: "t", Pid: i})
	}
	req := httptest.NewRequest(http.MethodGet, "/api/sessions?limit=5", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions []map[string]any `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Sessions, 5)
}

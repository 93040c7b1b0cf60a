package event

import "github.com/vx-daniel/barf/pkg/types"

// IssueCreatedData is the data for issue.created events.
type IssueCreatedData struct {
	Issue types.Issue `json:"issue"`
}

// IssueStateChangedData is the data for issue.state_changed events.
type IssueStateChangedData struct {
	IssueID string           `json:"issueId"`
	From    types.IssueState `json:"from"`
	To      types.IssueState `json:"to"`
}

// IssueExternalEditData is the data for issue.external_change events,
// published when the config watcher observes an issue markdown file in
// issuesDir written, created or renamed on disk.
type IssueExternalEditData struct {
	IssueID string `json:"issueId"`
}

// SessionStartedData is the data for session.started events.
type SessionStartedData struct {
	IssueID   string          `json:"issueId"`
	SessionID string          `json:"sessionId"`
	Mode      types.IssueMode `json:"mode"`
}

// SessionEndedData is the data for session.ended events.
type SessionEndedData struct {
	IssueID   string             `json:"issueId"`
	SessionID string             `json:"sessionId"`
	Stats     types.SessionStats `json:"stats"`
}

// AuditGateChangedData is the data for audit_gate.changed events.
type AuditGateChangedData struct {
	From types.AuditGateState `json:"from"`
	To   types.AuditGateState `json:"to"`
}

// ConfigChangedData is the data for config.changed events, published
// when the fsnotify watcher picks up an edit to a config file.
type ConfigChangedData struct {
	Path string `json:"path"`
}

package types

// AuditGateState is one state in the project-wide audit gate machine.
type AuditGateState string

const (
	AuditRunning  AuditGateState = "running"
	AuditDraining AuditGateState = "draining"
	AuditAuditing AuditGateState = "auditing"
	AuditFixing   AuditGateState = "fixing"
)

// TriggerSource identifies who triggered an audit.
type TriggerSource string

const (
	TriggerDashboard TriggerSource = "dashboard"
	TriggerCLI       TriggerSource = "cli"
	TriggerAuto      TriggerSource = "auto"
)

// AuditGate is the singleton per-project document persisted at
// <barfDir>/audit-gate.json. It pauses normal work so an external
// auditor can review recent completions.
type AuditGate struct {
	State       AuditGateState `json:"state"`
	TriggeredBy *TriggerSource `json:"triggeredBy,omitempty"`
	TriggeredAt *string        `json:"triggeredAt,omitempty"` // ISO-8601

	CompletedSinceLastAudit int `json:"completedSinceLastAudit"`

	AuditFixIssueIDs []string `json:"auditFixIssueIds,omitempty"`
}

// DefaultAuditGate returns the document used when none exists yet, or
// when the file on disk fails validation.
func DefaultAuditGate() AuditGate {
	return AuditGate{
		State:                   AuditRunning,
		CompletedSinceLastAudit: 0,
		AuditFixIssueIDs:        nil,
	}
}

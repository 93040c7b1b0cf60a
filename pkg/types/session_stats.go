package types

// SessionStats is a per-run snapshot of one IterationLoop invocation,
// persisted into the issue's cumulative counters and mirrored into a
// SessionIndexEvent "end" record.
type SessionStats struct {
	StartedAt        string `json:"startedAt"` // ISO-8601
	DurationSeconds  int    `json:"durationSeconds"`
	InputTokens      int    `json:"inputTokens"`
	OutputTokens     int    `json:"outputTokens"`
	FinalContextSize int    `json:"finalContextSize"`
	Iterations       int    `json:"iterations"`
	Model            string `json:"model"`
}

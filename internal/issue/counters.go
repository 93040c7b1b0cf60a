package issue

import "github.com/vx-daniel/barf/pkg/types"

// MergeStats folds one IterationLoop run's stats into an issue's
// cumulative counters. Counters are monotonically non-decreasing (spec
// §3 invariant): every field here is additive, never overwritten.
func MergeStats(current types.Issue, stats types.SessionStats) types.Issue {
	next := current
	next.TotalInputTokens += stats.InputTokens
	next.TotalOutputTokens += stats.OutputTokens
	next.TotalDurationSeconds += stats.DurationSeconds
	next.TotalIterations += stats.Iterations
	next.RunCount++
	return next
}

// Package contextbudget tracks cumulative input-token usage against a
// per-model context window and decides when an iteration has
// overflowed (spec §4.6). The model table replaces the teacher's fixed
// session.MaxContextTokens=150000 compaction threshold with a
// per-model limit table in the style of provider.Registry's model
// lookup, since different models carry different context windows.
package contextbudget

import (
	"math"

	"github.com/vx-daniel/barf/internal/agentclient"
)

// defaultLimit is used for any model id not present in limits below.
const defaultLimit = 200_000

// limits mirrors the teacher's provider model tables (ContextLength
// per types.Model), trimmed to the ids this project's configuration
// can name (spec §6 model options: planModel, buildModel, splitModel,
// extendedContextModel, triageModel, auditModel).
var limits = map[string]int{
	"claude-sonnet-4-6": 200_000,
	"claude-opus-4-6":   200_000,
}

// Limit returns the context window size for a model id, falling back
// to defaultLimit for unrecognized ids.
func Limit(model string) int {
	if l, ok := limits[model]; ok {
		return l
	}
	return defaultLimit
}

// Threshold computes floor(limit(model) * percent / 100), the point at
// which cumulative input tokens count as overflow.
func Threshold(model string, percent int) int {
	return int(math.Floor(float64(Limit(model)) * float64(percent) / 100.0))
}

// Tracker accumulates the running maximum of input+cache tokens across
// main-context turns for one IterationLoop run, ignoring sub-agent
// turns (those carrying a ParentToolUseID).
type Tracker struct {
	maxTokens int
}

// Observe folds one agent event's usage into the running maximum.
// Sub-agent turns are excluded per spec §4.6.
func (t *Tracker) Observe(ev agentclient.Event) {
	if ev.ParentToolUseID != nil {
		return
	}
	total := ev.Usage.InputTokens + ev.Usage.CacheCreationInputTokens + ev.Usage.CacheReadInputTokens
	if total > t.maxTokens {
		t.maxTokens = total
	}
}

// MaxTokens returns the running maximum observed so far.
func (t *Tracker) MaxTokens() int {
	return t.maxTokens
}

// Overflowed reports whether the running maximum has reached the
// configured threshold for model at percent.
func (t *Tracker) Overflowed(model string, percent int) bool {
	return t.maxTokens >= Threshold(model, percent)
}

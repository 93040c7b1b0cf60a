// Package overflow implements the pure split-vs-escalate decision from
// spec §4.7: once an iteration overflows its context budget, decide
// whether to decompose the issue further or switch to a larger-context
// model.
package overflow

// Action tags the two possible responses to an overflow.
type Action string

const (
	ActionSplit    Action = "split"
	ActionEscalate Action = "escalate"
)

// Decision is the discriminated result of Decide.
type Decision struct {
	Action    Action
	NextModel string
}

// Decide is pure: given how many times an issue has already been
// split and the configured ceiling, it picks split (while budget
// remains) or escalate (once exhausted). splitModel and
// extendedContextModel are the configured model ids to switch to for
// each branch.
func Decide(splitCount, maxAutoSplits int, splitModel, extendedContextModel string) Decision {
	if splitCount < maxAutoSplits {
		return Decision{Action: ActionSplit, NextModel: splitModel}
	}
	return Decision{Action: ActionEscalate, NextModel: extendedContextModel}
}

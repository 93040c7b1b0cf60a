// Package auditgate implements the project-wide state machine from
// spec §4.9: pausing normal build/plan work so an external auditor can
// review recent completions. The document is a single JSON file,
// protected the way Open Question #3 resolves it — with the teacher's
// generic storage.FileLock (flock) rather than a bespoke primitive,
// since audit-gate.json is just one more JSON document under .barf/
// and the teacher already has a working cross-process lock for that.
package auditgate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vx-daniel/barf/internal/storage"
	"github.com/vx-daniel/barf/pkg/types"
)

const fileName = "audit-gate.json"

// Gate reads and mutates one project's audit-gate.json under its own
// file lock. All mutating methods are read-modify-write under the
// same lock instance, so concurrent Gate values across processes never
// interleave a read and a write.
type Gate struct {
	path  string
	flock *storage.FileLock
}

// New creates a Gate rooted at barfDir.
func New(barfDir string) *Gate {
	path := filepath.Join(barfDir, fileName)
	return &Gate{path: path, flock: storage.NewFileLock(path)}
}

// Read loads the current document. A missing or corrupt file yields
// the default {running, 0, []} document rather than an error (spec
// §4.9 Persistence).
func (g *Gate) Read() (types.AuditGate, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.DefaultAuditGate(), nil
		}
		return types.DefaultAuditGate(), nil
	}
	var doc types.AuditGate
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.DefaultAuditGate(), nil
	}
	return doc, nil
}

func (g *Gate) write(doc types.AuditGate) error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return fmt.Errorf("auditgate: ensure dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("auditgate: marshal: %w", err)
	}
	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("auditgate: write temp: %w", err)
	}
	if err := os.Rename(tmp, g.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("auditgate: rename: %w", err)
	}
	return nil
}

func (g *Gate) mutate(fn func(types.AuditGate) types.AuditGate) (types.AuditGate, error) {
	if err := g.flock.Lock(); err != nil {
		return types.AuditGate{}, fmt.Errorf("auditgate: lock: %w", err)
	}
	defer g.flock.Unlock()

	current, err := g.Read()
	if err != nil {
		return types.AuditGate{}, err
	}
	next := fn(current)
	if err := g.write(next); err != nil {
		return types.AuditGate{}, err
	}
	return next, nil
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// Trigger is a no-op unless the gate is running; otherwise it moves to
// draining and records who triggered it.
func (g *Gate) Trigger(by types.TriggerSource) (types.AuditGate, bool, error) {
	took := false
	doc, err := g.mutate(func(d types.AuditGate) types.AuditGate {
		if d.State != types.AuditRunning {
			return d
		}
		took = true
		t := now()
		d.State = types.AuditDraining
		d.TriggeredBy = &by
		d.TriggeredAt = &t
		return d
	})
	return doc, took, err
}

// TransitionToAuditing moves draining -> auditing once in-flight work
// has drained.
func (g *Gate) TransitionToAuditing() (types.AuditGate, error) {
	return g.mutate(func(d types.AuditGate) types.AuditGate {
		if d.State == types.AuditDraining {
			d.State = types.AuditAuditing
		}
		return d
	})
}

// TransitionToFixing records audit findings and holds the fix-issue ids.
func (g *Gate) TransitionToFixing(ids []string) (types.AuditGate, error) {
	return g.mutate(func(d types.AuditGate) types.AuditGate {
		if d.State == types.AuditAuditing {
			d.State = types.AuditFixing
			d.AuditFixIssueIDs = ids
		}
		return d
	})
}

// Cancel returns to running from any non-running state, clearing
// fix-issue ids and trigger metadata but preserving the completed
// counter (spec §4.9).
func (g *Gate) Cancel() (types.AuditGate, error) {
	return g.mutate(func(d types.AuditGate) types.AuditGate {
		if d.State == types.AuditRunning {
			return d
		}
		d.State = types.AuditRunning
		d.TriggeredBy = nil
		d.TriggeredAt = nil
		d.AuditFixIssueIDs = nil
		return d
	})
}

// Reset returns to running with the completed counter zeroed: called
// when an audit finds nothing, or when all fix issues clear.
func (g *Gate) Reset() (types.AuditGate, error) {
	return g.mutate(func(d types.AuditGate) types.AuditGate {
		d.State = types.AuditRunning
		d.TriggeredBy = nil
		d.TriggeredAt = nil
		d.AuditFixIssueIDs = nil
		d.CompletedSinceLastAudit = 0
		return d
	})
}

// IncrementCompleted is called after every successful build exit.
func (g *Gate) IncrementCompleted() (types.AuditGate, error) {
	return g.mutate(func(d types.AuditGate) types.AuditGate {
		d.CompletedSinceLastAudit++
		return d
	})
}

// CheckAutoTrigger reports whether the configured completion count has
// been reached while running.
func CheckAutoTrigger(d types.AuditGate, auditAfterN int) bool {
	return auditAfterN > 0 && d.State == types.AuditRunning && d.CompletedSinceLastAudit >= auditAfterN
}

// IssueLookup resolves an issue id to its record and parent pointer;
// in production the orchestrator builds one over a ListIssues snapshot.
type IssueLookup func(id string) (parent *string, isVerifyFix bool, directlyListed bool, ok bool)

// Admits resolves Open Question #1: whether issueID may run under the
// current gate state. Outside "fixing" admission follows the simple
// running/fixing-of-self rule from spec §4.9; during "fixing" an issue
// is admitted iff it, or any ancestor reached by walking parent
// pointers, is in AuditFixIssueIDs or has IsVerifyFix set —
// transitive descendants of a fix issue are treated as part of that
// fix, not as unrelated new work sneaking in under the gate.
func Admits(d types.AuditGate, issueID string, lookup IssueLookup) bool {
	switch d.State {
	case types.AuditRunning:
		return true
	case types.AuditDraining, types.AuditAuditing:
		return false
	case types.AuditFixing:
		return isFixLineage(d, issueID, lookup, 0)
	default:
		return false
	}
}

const maxAncestorWalk = 64

func isFixLineage(d types.AuditGate, id string, lookup IssueLookup, depth int) bool {
	if depth > maxAncestorWalk {
		return false
	}
	parent, isVerifyFix, listed, ok := lookup(id)
	if !ok {
		return false
	}
	if isVerifyFix || listed || contains(d.AuditFixIssueIDs, id) {
		return true
	}
	if parent == nil {
		return false
	}
	return isFixLineage(d, *parent, lookup, depth+1)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

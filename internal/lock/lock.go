// Package lock implements the per-issue cross-process exclusion
// described in spec §4.3: an exclusive-create lock file carrying
// LockInfo JSON, with stale-lock reclamation based on PID liveness on
// the local host. Acquire never blocks; callers are expected to skip a
// busy issue and try another (spec §4.3 Ordering).
//
// The mechanism is adapted from the teacher's flock-based
// storage.FileLock: atomic file creation for exclusivity, plus an
// atomic temp-file-then-rename replace (storage.Storage.Put's idiom)
// for stale reclamation, instead of an OS advisory lock — flock alone
// cannot express "reclaim if the owning pid died," which spec §4.3
// requires.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vx-daniel/barf/pkg/types"
)

// Outcome tags the result of an Acquire call.
type Outcome string

const (
	Acquired       Outcome = "ok"
	Busy           Outcome = "busy"
	StaleReclaimed Outcome = "stale_reclaimed"
)

// Result is the discriminated outcome of Acquire.
type Result struct {
	Outcome Outcome
	// Holder is populated when Outcome is Busy: the live lock's info.
	Holder *types.LockInfo
}

// Lock manages the per-issue lock files under one barf directory.
type Lock struct {
	dir string
}

// New creates a Lock rooted at barfDir (spec file layout:
// <barfDir>/<id>.lock).
func New(barfDir string) *Lock {
	return &Lock{dir: barfDir}
}

func (l *Lock) path(issueID string) string {
	return filepath.Join(l.dir, issueID+".lock")
}

// Acquire attempts to take the lock for issueID. It never waits: on
// collision with a live holder it returns Busy immediately: the
// orchestrator is expected to move on to another issue (spec §4.3).
func (l *Lock) Acquire(issueID string, mode types.IssueMode, stateAtAcquire types.IssueState) (Result, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("lock: ensure dir: %w", err)
	}

	info := types.LockInfo{
		Pid:            os.Getpid(),
		AcquiredAt:     time.Now().UTC().Format(time.RFC3339),
		StateAtAcquire: stateAtAcquire,
		Mode:           mode,
		Token:          uuid.NewString(),
	}

	path := l.path(issueID)

	if created, err := l.tryCreate(path, info); err != nil {
		return Result{}, err
	} else if created {
		return Result{Outcome: Acquired}, nil
	}

	// Collision: read the existing lock and check liveness.
	existing, err := readLockInfo(path)
	if err != nil {
		// Unreadable lock file: treat as busy, never as corruption
		// (spec §4.3 Failure modes) — a concurrent release/create race
		// is the most likely cause.
		log.Warn().Err(err).Str("issue", issueID).Msg("lock: could not read existing lock file")
		return Result{Outcome: Busy}, nil
	}

	if isAlive(existing.Pid) {
		return Result{Outcome: Busy, Holder: existing}, nil
	}

	// Stale: the owning pid is confirmed dead. Atomically replace.
	if err := writeAtomic(path, info); err != nil {
		return Result{}, fmt.Errorf("lock: reclaim: %w", err)
	}
	log.Info().Str("issue", issueID).Int("stalePid", existing.Pid).Msg("lock: reclaimed stale lock")
	return Result{Outcome: StaleReclaimed}, nil
}

// Release deletes the lock file for issueID. Absence is not an error.
func (l *Lock) Release(issueID string) error {
	err := os.Remove(l.path(issueID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: release: %w", err)
	}
	return nil
}

// tryCreate attempts an exclusive create of the lock file. It returns
// created=false (no error) when the file already exists, so the caller
// can fall through to collision handling.
func (l *Lock) tryCreate(path string, info types.LockInfo) (created bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("lock: create: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(info); err != nil {
		return false, fmt.Errorf("lock: write: %w", err)
	}
	return true, nil
}

// writeAtomic replaces the lock file's contents via a temp-file
// rename, matching storage.Storage.Put's write-then-rename pattern so
// a reader never observes a partially written lock file.
func writeAtomic(path string, info types.LockInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func readLockInfo(path string) (*types.LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info types.LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// isAlive reports whether pid refers to a live process on this host.
// Sending signal 0 performs no action but still validates the pid
// exists and is accessible; ESRCH means the process is gone.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	// EPERM (and similar): the process exists but we can't signal it —
	// still alive from our perspective.
	return true
}

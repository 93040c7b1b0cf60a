// Package sessionindex appends SessionIndexEvent records to
// sessions.jsonl (spec §6 file layout) and fans them out over the
// event bus, mirroring the append-only log + watermill publish
// pairing the teacher uses for session activity, generalized from
// JSON documents per session to one append-only log per project.
package sessionindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vx-daniel/barf/internal/event"
	"github.com/vx-daniel/barf/pkg/types"
)

const fileName = "sessions.jsonl"

// Index appends events to one project's sessions.jsonl.
type Index struct {
	path string
	mu   sync.Mutex
}

// New creates an Index rooted at barfDir.
func New(barfDir string) *Index {
	return &Index{path: filepath.Join(barfDir, fileName)}
}

// Append writes one event as a line and publishes it on the event bus.
// Failure is logged, not returned — session-index writes are a best-
// effort side channel (spec §9 "best-effort side effects"), never a
// reason to fail an IterationLoop run.
func (i *Index) Append(ev types.SessionIndexEvent) {
	if err := i.appendLine(ev); err != nil {
		log.Warn().Err(err).Str("kind", string(ev.Kind())).Msg("sessionindex: append failed")
	}
	i.publish(ev)
}

func (i *Index) appendLine(ev types.SessionIndexEvent) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		return fmt.Errorf("sessionindex: ensure dir: %w", err)
	}

	line, err := types.MarshalSessionIndexEvent(ev)
	if err != nil {
		return fmt.Errorf("sessionindex: marshal: %w", err)
	}

	f, err := os.OpenFile(i.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("sessionindex: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("sessionindex: write: %w", err)
	}
	return nil
}

func (i *Index) publish(ev types.SessionIndexEvent) {
	switch e := ev.(type) {
	case types.StartEvent:
		event.Publish(event.Event{Type: event.SessionStarted, Data: event.SessionStartedData{
			IssueID: e.IssueID, SessionID: e.SessionID, Mode: e.Mode,
		}})
	case types.EndEvent:
		event.Publish(event.Event{Type: event.SessionEnded, Data: event.SessionEndedData{
			IssueID: e.IssueID, SessionID: e.SessionID, Stats: e.Stats,
		}})
	case types.AuditGateEvent:
		event.Publish(event.Event{Type: event.AuditGateChanged, Data: event.AuditGateChangedData{
			From: e.From, To: e.To,
		}})
	}
}

// ReadAll loads every event currently in the log, in file order. Lines
// with an unrecognized kind are skipped with a warning rather than
// failing the whole read — forward compatibility for logs written by
// a newer version.
func (i *Index) ReadAll() ([]types.SessionIndexEvent, error) {
	data, err := os.ReadFile(i.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sessionindex: read: %w", err)
	}

	var events []types.SessionIndexEvent
	start := 0
	for idx := 0; idx <= len(data); idx++ {
		if idx < len(data) && data[idx] != '\n' {
			continue
		}
		line := data[start:idx]
		start = idx + 1
		if len(line) == 0 {
			continue
		}
		ev, err := types.UnmarshalSessionIndexEvent(line)
		if err != nil {
			log.Warn().Err(err).Msg("sessionindex: skipping unreadable line")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

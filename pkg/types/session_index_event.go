package types

import "encoding/json"

// EventKind discriminates the SessionIndexEvent tagged union.
type EventKind string

const (
	EventStart     EventKind = "start"
	EventEnd       EventKind = "end"
	EventAutoStart EventKind = "auto_start"
	EventAutoEnd   EventKind = "auto_end"
	EventDelete    EventKind = "delete"
	EventArchive   EventKind = "archive"
	EventAuditGate EventKind = "audit_gate"
)

// SessionIndexEvent is one line of the append-only sessions.jsonl log.
// Every concrete type below implements it; Kind identifies which one a
// decoded json.RawMessage holds.
type SessionIndexEvent interface {
	Kind() EventKind
}

// StartEvent marks the beginning of one IterationLoop invocation for
// an issue — the open half of the start/end bracket that defines a
// "session" (see GLOSSARY).
type StartEvent struct {
	IssueID          string    `json:"issueId"`
	Timestamp        string    `json:"timestamp"`
	SessionID        string    `json:"sessionId"`
	Pid              int       `json:"pid"`
	Mode             IssueMode `json:"mode"`
	Model            string    `json:"model"`
	StreamByteOffset int64     `json:"streamByteOffset"`
}

func (StartEvent) Kind() EventKind { return EventStart }

// EndEvent closes the bracket opened by a StartEvent with the same
// SessionID, carrying cumulative token and iteration totals.
type EndEvent struct {
	IssueID          string       `json:"issueId"`
	Timestamp        string       `json:"timestamp"`
	SessionID        string       `json:"sessionId"`
	Pid              int          `json:"pid"`
	StreamByteOffset int64        `json:"streamByteOffset"`
	Stats            SessionStats `json:"stats"`
}

func (EndEvent) Kind() EventKind { return EventEnd }

// AutoStartEvent/AutoEndEvent bracket a long-running auto-loop process
// (as opposed to a single issue's session), so observers can tell a
// one-shot interactive run from an unattended loop.
type AutoStartEvent struct {
	Timestamp string `json:"timestamp"`
	Pid       int    `json:"pid"`
}

func (AutoStartEvent) Kind() EventKind { return EventAutoStart }

type AutoEndEvent struct {
	Timestamp string `json:"timestamp"`
	Pid       int    `json:"pid"`
}

func (AutoEndEvent) Kind() EventKind { return EventAutoEnd }

// DeleteEvent and ArchiveEvent record issue lifecycle events that
// aren't state transitions (removal from the active set entirely).
type DeleteEvent struct {
	IssueID   string `json:"issueId"`
	Timestamp string `json:"timestamp"`
}

func (DeleteEvent) Kind() EventKind { return EventDelete }

type ArchiveEvent struct {
	IssueID   string `json:"issueId"`
	Timestamp string `json:"timestamp"`
}

func (ArchiveEvent) Kind() EventKind { return EventArchive }

// AuditGateEvent records a transition of the project-wide AuditGate
// state machine.
type AuditGateEvent struct {
	Timestamp   string         `json:"timestamp"`
	From        AuditGateState `json:"from"`
	To          AuditGateState `json:"to"`
	TriggeredBy *TriggerSource `json:"triggeredBy,omitempty"`
}

func (AuditGateEvent) Kind() EventKind { return EventAuditGate }

// envelope is the wire shape every event is wrapped in: a "kind"
// discriminator alongside the event's own fields, flattened by
// marshaling the concrete event and injecting "kind" after the fact.
type envelope struct {
	Kind EventKind `json:"kind"`
}

// MarshalSessionIndexEvent serializes an event with its "kind" tag
// injected, ready to append (plus a newline) to sessions.jsonl.
func MarshalSessionIndexEvent(ev SessionIndexEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}

	kindJSON, err := json.Marshal(ev.Kind())
	if err != nil {
		return nil, err
	}
	fields["kind"] = kindJSON

	return json.Marshal(fields)
}

// UnmarshalSessionIndexEvent decodes one sessions.jsonl line into its
// concrete SessionIndexEvent type based on the "kind" field.
func UnmarshalSessionIndexEvent(data []byte) (SessionIndexEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Kind {
	case EventStart:
		var e StartEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventEnd:
		var e EndEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventAutoStart:
		var e AutoStartEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventAutoEnd:
		var e AutoEndEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventDelete:
		var e DeleteEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventArchive:
		var e ArchiveEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventAuditGate:
		var e AuditGateEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, &UnknownEventKindError{Kind: env.Kind}
	}
}

// UnknownEventKindError is returned when a sessions.jsonl line carries
// a "kind" this version does not recognize.
type UnknownEventKindError struct {
	Kind EventKind
}

func (e *UnknownEventKindError) Error() string {
	return "sessionindex: unknown event kind: " + string(e.Kind)
}

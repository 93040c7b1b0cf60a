// Package server provides a thin, read-only HTTP status API: a
// dashboard (or curl) can poll or stream the same on-disk state the
// orchestrator itself reads and writes, without driving any work.
//
// # Endpoints
//
//   - GET /healthz: liveness check
//   - GET /api/issues: every issue, as issuestore sees them
//   - GET /api/issues/{issueID}: one issue's full state
//   - GET /api/audit-gate: the audit-gate's current state document
//   - GET /api/sessions: the session index tail (?limit=N caps it)
//   - GET /api/events: a Server-Sent Events stream of every event
//     published on the package event bus — issue created/state-changed,
//     session started/ended, audit-gate changed, config changed
//
// # Architecture
//
// The server holds no mutable state of its own; it wraps issuestore,
// auditgate, and sessionindex read paths behind chi routes, using the
// same middleware stack (request ID, logging, recovery, CORS) the
// teacher's own server used, and the same hand-rolled SSE writer for
// the same reason: a handful of event types don't justify a streaming
// framework.
package server

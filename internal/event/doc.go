/*
Package event provides a type-safe pub/sub event bus for the status
server and the config watcher.

The event system enables decoupled communication between different
components by allowing publishers to emit events and subscribers to
react to them without direct dependencies.

# Architecture

The package is built on top of watermill's gochannel for
infrastructure while maintaining direct-call semantics to preserve
type information. It provides both synchronous and asynchronous event
publishing patterns.

# Event Types

Issue Events:
  - issue.created: New issue created
  - issue.state_changed: Issue transitioned to a new state
  - issue.external_change: An issue markdown file in issuesDir changed on disk

Session Events:
  - session.started: An IterationLoop invocation began
  - session.ended: An IterationLoop invocation ended

Audit Gate Events:
  - audit_gate.changed: The project-wide audit gate changed state

Config Events:
  - config.changed: A watched config file was edited

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking)
	event.Publish(event.Event{
		Type: event.IssueStateChanged,
		Data: event.IssueStateChangedData{IssueID: id, From: from, To: to},
	})

	// Synchronous publishing (blocking until all subscribers complete)
	event.PublishSync(event.Event{
		Type: event.SessionEnded,
		Data: event.SessionEndedData{IssueID: id, Stats: stats},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.IssueStateChanged, func(e event.Event) {
		data := e.Data.(event.IssueStateChangedData)
		log.Info().Str("issue", data.IssueID).Msg("state changed")
	})
	defer unsubscribe()

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		log.Debug().Str("type", string(e.Type)).Msg("event received")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

When using PublishSync, subscribers are called synchronously in the
publisher's goroutine. To avoid blocking or deadlocks, subscribers
MUST:

  - Complete quickly (avoid long-running operations)
  - Use non-blocking channel sends (select with default case)
  - Never call Publish/PublishSync from within a subscriber (no re-entrant publishing)
  - Never acquire locks that the publisher might hold

# Custom Event Bus

For testing or isolation, create custom bus instances:

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.IssueStateChanged, handler)
	bus.PublishSync(event.Event{Type: event.IssueStateChanged, Data: data})

# Testing

	// Reset global bus state (use in test cleanup)
	event.Reset()

# Thread Safety

The event bus is thread-safe and can be used concurrently from
multiple goroutines. Both publishing and subscribing operations are
protected by internal synchronization.

# Integration with Watermill

The package uses watermill's gochannel internally, providing access to
the underlying pubsub infrastructure for advanced use cases:

	pubsub := event.PubSub()

This allows future migration to a distributed broker without changing
the publish/subscribe API.
*/
package event

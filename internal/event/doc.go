/*
Package event provides a type-safe pub/sub event system for observing runs.

The event system lets the executor, the permission broker, and the status
server communicate without direct dependencies: publishers emit events and
subscribers react to them.

# Architecture

The package is built on top of watermill's gochannel for infrastructure
while maintaining direct-call semantics to preserve type information. It
provides both synchronous and asynchronous publishing.

# Event Types

Run events:
  - run.started: a run began (tier, model, workspace)
  - run.progress: one human-readable line per agent output event
  - run.heartbeat: the agent has been quiet for a heartbeat interval
  - run.completed: the run finished (success, error, cost)

Interaction events:
  - interaction.required: the agent asked the human something in-band
  - interaction.answered: the human (or a policy) answered

Permission events:
  - permission.required: a tool-permission query reached the broker
  - permission.resolved: the query was decided, with the deciding stage

# Basic Usage

Publishing:

	event.Publish(event.Event{
		Type: event.RunProgress,
		Data: event.RunProgressData{RunID: id, Text: line},
	})

Subscribing:

	unsubscribe := event.Subscribe(event.RunCompleted, func(e event.Event) {
		data := e.Data.(event.RunCompletedData)
		log.Info().Str("run", data.RunID).Msg("run finished")
	})
	defer unsubscribe()

# Subscriber Safety

PublishSync calls subscribers in the publisher's goroutine. Subscribers
must complete quickly, use non-blocking channel sends, and never publish
re-entrantly or take locks the publisher might hold. The status server's
SSE fan-out uses a select with a default case and drops events when a
client's buffer is full.

# Custom Bus

For testing or isolation, create dedicated instances:

	bus := event.NewBus()
	defer bus.Close()

The global bus can be cleared between tests with event.Reset().
*/
package event

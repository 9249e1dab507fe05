// Package persist implements the event-sourcing persistence engine behind
// the cqrs package: serialized event and snapshot shapes, the repository
// contracts storage backends implement, the persisted event store with its
// three source-of-truth strategies, semantic-version event upcasting,
// bounded replay streaming and the generic view-maintaining query.
//
// Backend adapters (see the adapters directory) only implement the
// EventRepository and ViewRepository interfaces; all snapshot arithmetic,
// upcasting and orchestration logic lives here and is shared.
package persist

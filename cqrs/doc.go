// Package cqrs provides the core contracts for building event-sourced CQRS
// applications: the aggregate and domain event interfaces, event envelopes,
// query observers, the event store contract and the command-execution
// framework that ties them together.
//
// State changes enter the system exclusively through Framework.Execute: the
// aggregate is rebuilt from its event history, the command is validated
// against that state, and any resulting events are committed and fanned out
// to the registered queries.
package cqrs

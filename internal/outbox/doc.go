// Package outbox publishes loan lifecycle events through a transactional
// outbox.
//
// # Overview
//
// The loan ledger writes an outbox row in the same transaction as every loan
// it creates or closes, so an event exists if and only if its loan write
// committed. A separate relay process drains the table into Kafka.
//
// # Components
//
//   - Emitter: builds domain.OutboxEvent rows with payload and metadata
//   - Adapter: stores events through the outbox repository
//   - Publisher: the ledger's LoanEventRecorder, combining the two
//   - Relay: claims pending rows, publishes them to Kafka, and marks the outcome
//
// # Event Types
//
//   - loan.borrowed: a loan was created
//   - loan.returned: a loan was closed
//
// Messages are keyed by copy ID so events for one copy stay in order on a
// single partition.
package outbox

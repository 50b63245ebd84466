// Package audit implements async delivery of authentication audit records.
//
// # Components
//
//   - [Sink] — interface for record consumers (channel, JSON lines, slog, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event] — structured record with timestamp, type, session, subject, metadata.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. It does NOT decide which
// records to emit; the authcore engine translates domain events into records.
//
// # What this package must NOT do
//
//   - Filter or suppress records based on business logic.
//   - Import authcore or any sibling internal package.
package audit

// Package repositories implements SQLite persistence for login analytics.
//
// [LoginRepository] implements models.Repository for [models.LoginEvent] with soft deletes via
// deleted_at, and adds Summary for the analytics endpoint.
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories

// Package tasks runs the long-lived and batch operations on top of the service clients.
//
// # Library sync
//
// [Syncer] keeps a client's view of the album library current:
//
//  1. Refresh an access token through a [services.Refresher], reusing it while it is valid
//  2. Fetch every saved album and the user profile concurrently
//  3. Replace the snapshot wholesale
//
// Cycles are numbered. Starting one cancels the cycle in flight and only the latest may write
// state. A lost session signs the user out; a failed fetch after a successful one keeps the
// previous albums and sets a warning. [Syncer.Run] repeats the cycle every interval and on
// [Syncer.Trigger]. [LoadLibrary] runs a single cycle for one-shot commands.
//
// # Export
//
// [BulkExport] writes a library in several formats plus rendered collages into one directory
// using a rate-limited worker pool, then writes export_manifest.json.
//
// # Progress Reporting
//
// Long operations report [ProgressUpdate] values on an optional channel. Sends never block;
// updates are dropped when the channel is full.
package tasks

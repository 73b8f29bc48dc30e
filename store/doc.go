// Package store is a client for a RavenDB-style HTTP document database.
//
// Documents are JSON objects identified by string keys such as "genres/1".
// Each document carries a metadata envelope (entity name and etag) that is
// kept apart from its data fields.
//
// # Key Features
//
//   - Connection strings and per-database routing
//   - Optimistic concurrency via etag preconditions
//   - Pluggable key generation (UUID, in-process sequence, DynamoDB HiLo)
//   - Index queries with ordered field:value criteria
//   - Idempotent database creation
//
// # Outcomes and Errors
//
// Every operation returns a [Result] and an error. Routine negative
// outcomes are reported in [Result.Outcome], never as errors:
//
//   - [OutcomeSuccess] - the server accepted the request
//   - [OutcomeConflict] - a conditional write carried a stale etag
//   - [OutcomeNotFound] - the document does not exist
//
// Errors mean the operation did not execute:
//
//   - [ConfigError] - no server URL could be resolved (returned by [New])
//   - [ContractError] - programmer error, e.g. [ErrMissingMetadata]; no I/O happened
//   - [ValidationError] - invalid database name; no I/O happened
//   - [TransportError] - network failure or unexpected HTTP status
//   - [KeyGenerationError] - no key could be assigned
//
// # Configuration
//
//	cfg := store.DefaultConfig()
//	cfg.ConnectionString = "Url=http://localhost:8080;Database=Northwind"
//	cfg.UseOptimisticConcurrency = true
//	s, err := store.New(cfg)
//
// Explicit Config fields override values parsed from the connection string.
package store

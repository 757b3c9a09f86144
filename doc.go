// Package famulus provides a staged chat-processing pipeline with long-term
// memory for personal-assistant backends.
//
// famulus pushes every inbound message through a fixed twelve-stage sequence:
// input analysis, intent classification, confidence gating, intent
// resolution, memory recall, memory extraction, conflict detection,
// completion gating, trust evaluation, the save decision, context assembly,
// and the model response. Each stage leaves exactly one entry in the run's
// audit trail, so a finished run fully explains itself.
//
// # Core Types
//
//   - [Pipeline] - The stage-execution engine; one instance serves many concurrent runs
//   - [Run] - Per-request state threaded through the stages, with the audit trail
//   - [Config] - A per-run snapshot of the stored pipeline configuration
//   - [MemoryCandidate] - A fact extracted from the message on its way to persistence
//   - [Response] - The complete result envelope returned to the client
//
// # Running the Pipeline
//
// Construct a pipeline over a document store, a memory store, and a provider
// registry, then call Chat:
//
//	pipeline := famulus.New(store, memories, providers)
//	resp := pipeline.Chat(ctx, famulus.Input{
//		SubjectID: "user-123",
//		Message:   "remember that I love hiking",
//	})
//
// Chat never returns an error: admission rejections, stage failures, and
// provider outages all resolve to a complete Response with fixed user-facing
// text.
//
// # Stage Execution
//
// The [Executor] runs every stage under one uniform policy: configuration
// checks, runtime skip rules, retries with a fixed delay, per-attempt
// timeouts, and the critical-versus-absorbed failure decision. Failures in
// non-critical stages degrade the run; failures in critical stages abort it,
// with the remaining stages recorded as skipped.
//
// # Memory
//
// Extracted candidates flow through conflict detection against stored facts,
// a completeness gate that holds partial facts for user confirmation, trust
// scoring, and an atomic batch save. [PgStore] provides the Postgres-backed
// [DocStore] and [MemoryStore] implementations.
//
// # Observability
//
// Every lifecycle transition emits a capitan signal (see signals.go). Hook
// them to feed whatever logging or metrics stack hosts the pipeline.
package famulus

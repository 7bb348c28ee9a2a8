// Package services defines shared utilities consumed by the workflow engine
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, item IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (authorization vs transient vs validation) with errors.Is.
//
// Integrations live in subpackages: homebox (inventory API), llm and gemini
// (vision models), and retry (shared HTTP backoff policy).
package services

// Package vision turns photos into candidate inventory items by prompting a
// vision-capable language model for structured JSON.
//
// The Detector handles first-pass detection with optional single-item
// grouping, user hints, extended fields, and label suggestions. The
// Corrector re-runs a single candidate through the model with user
// feedback and may return several items when the original grouped
// distinct objects together.
//
// Both rely on a Completer, which is satisfied by the OpenAI-compatible
// llm.Client and by the Gemini client.
package vision

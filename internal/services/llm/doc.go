// Package llm provides a chat completions client for OpenAI-compatible
// vision models.
//
// The detector and corrector in internal/vision send a system prompt, a user
// prompt, and one or more photos; the client returns the model's raw JSON,
// which DecodeLLMJSON parses while tolerating code fences and surrounding
// prose.
//
// # Retry Behaviour
//
// Requests go through retry.Policy: HTTP 408/429/5xx, network timeouts, and
// empty completions are retried with exponential backoff (base 1s, max 10s,
// up to 5 attempts by default). Context cancellation aborts retries
// immediately. The HTTP timeout defaults to two minutes because vision
// requests are slow.
package llm

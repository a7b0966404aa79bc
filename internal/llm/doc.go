// Package llm provides the model clients used for semantic review and fix
// generation.
//
// Anthropic and OpenAI-compatible endpoints are supported; local servers such
// as Ollama and LM Studio are reached through the OpenAI protocol. Rate limits
// and 5xx responses are retried with exponential backoff according to a
// configurable RetryPolicy; authentication failures are never retried.
package llm

// Package model defines the provider-neutral interface for language model
// backends together with shared request/response types. Concrete adapters
// live in the subpackages anthropic and openai; RetryModel wraps any Model
// with exponential backoff and per-call timeouts.
package model

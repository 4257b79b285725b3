// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing core model objects (messages,
// prompts, tools) and asserting behaviors. These helpers are intentionally
// minimal. They are not intended for production usage.
package testutil

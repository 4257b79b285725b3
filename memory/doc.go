// Package memory defines the durable fact store consumed by history
// compression and agent tooling: Concepts describe what can be remembered,
// Facts are remembered values, Subjects rank who a fact belongs to and Scopes
// bound where it is valid. A no-op provider is the default; the in-memory
// provider backs tests and demos.
package memory

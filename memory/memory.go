package memory

import (
	"context"
	"time"
)

// Arity states how many values a concept may hold.
type Arity int

const (
	// Single concepts hold at most one fact.
	Single Arity = iota
	// Multiple concepts hold any number of facts.
	Multiple
)

// Concept describes a keyword under which facts are stored and retrieved.
type Concept struct {
	Keyword     string
	Description string
	Arity       Arity
}

// Fact is a concept-tagged value (or values, for Multiple arity concepts)
// with a creation timestamp.
type Fact struct {
	Concept   Concept
	Values    []string
	CreatedAt time.Time
}

// NewFact creates a fact for the given concept.
func NewFact(concept Concept, values ...string) Fact {
	return Fact{Concept: concept, Values: values, CreatedAt: time.Now().UTC()}
}

// Subject identifies the entity a fact pertains to, ranked by specificity.
// A more specific subject always wins conflict resolution for the same
// concept: MACHINE > USER > PROJECT > ORGANIZATION.
type Subject int

const (
	// Organization is the least specific subject.
	Organization Subject = iota
	// Project scopes facts to one project.
	Project
	// User scopes facts to one user.
	User
	// Machine is the most specific subject.
	Machine
)

// String returns the subject name.
func (s Subject) String() string {
	switch s {
	case Machine:
		return "MACHINE"
	case User:
		return "USER"
	case Project:
		return "PROJECT"
	case Organization:
		return "ORGANIZATION"
	default:
		return "UNKNOWN"
	}
}

// MoreSpecificThan reports whether s outranks other in conflict resolution.
func (s Subject) MoreSpecificThan(other Subject) bool { return s > other }

// Scope is the validity context for a fact (e.g. a repository path or an
// environment name). The empty scope matches everything.
type Scope struct {
	Name string
}

// GlobalScope matches every lookup.
var GlobalScope = Scope{}

// Provider persists and retrieves durable facts. Conflict resolution across
// subjects for the same concept always prefers the more specific subject.
type Provider interface {
	// Save stores a fact for the subject within the scope.
	Save(ctx context.Context, fact Fact, subject Subject, scope Scope) error

	// Load returns facts for the concept, resolved across subjects.
	Load(ctx context.Context, concept Concept, subject Subject, scope Scope) ([]Fact, error)

	// LoadAll returns every fact visible to the subject within the scope.
	LoadAll(ctx context.Context, subject Subject, scope Scope) ([]Fact, error)

	// LoadByDescription returns facts whose concept description or values
	// match the free-text query.
	LoadByDescription(ctx context.Context, text string, subject Subject, scope Scope) ([]Fact, error)
}

// NoopProvider stores nothing and returns nothing. It is the default
// provider so memory support is strictly opt-in.
type NoopProvider struct{}

// Save implements Provider.
func (NoopProvider) Save(context.Context, Fact, Subject, Scope) error { return nil }

// Load implements Provider.
func (NoopProvider) Load(context.Context, Concept, Subject, Scope) ([]Fact, error) {
	return nil, nil
}

// LoadAll implements Provider.
func (NoopProvider) LoadAll(context.Context, Subject, Scope) ([]Fact, error) { return nil, nil }

// LoadByDescription implements Provider.
func (NoopProvider) LoadByDescription(context.Context, string, Subject, Scope) ([]Fact, error) {
	return nil, nil
}

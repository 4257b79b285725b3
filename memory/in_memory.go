package memory

import (
	"context"
	"strings"
	"sync"
)

type storedFact struct {
	fact    Fact
	subject Subject
	scope   Scope
}

// InMemoryProvider is a process-local Provider. Facts are held per subject
// and scope; lookups resolve conflicts by preferring the most specific
// subject that holds the concept at or below the requested specificity.
//
// Concurrency: protected by RWMutex. Matching is linear scan with substring
// matching for description queries. Suitable for tests and demos; swap for a
// durable store in production.
type InMemoryProvider struct {
	mu    sync.RWMutex
	facts []storedFact
}

// NewInMemoryProvider creates an empty in-memory fact store.
func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{}
}

// Save implements Provider. Saving a Single arity concept replaces any
// existing fact for the same concept, subject and scope.
func (p *InMemoryProvider) Save(_ context.Context, fact Fact, subject Subject, scope Scope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fact.Concept.Arity == Single {
		for i, sf := range p.facts {
			if sf.fact.Concept.Keyword == fact.Concept.Keyword && sf.subject == subject && sf.scope == scope {
				p.facts[i] = storedFact{fact: fact, subject: subject, scope: scope}
				return nil
			}
		}
	}

	p.facts = append(p.facts, storedFact{fact: fact, subject: subject, scope: scope})
	return nil
}

// Load implements Provider. When several subjects hold facts for the same
// concept, only the most specific subject's facts are returned.
func (p *InMemoryProvider) Load(_ context.Context, concept Concept, subject Subject, scope Scope) ([]Fact, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var (
		best      Subject
		haveBest  bool
		collected []Fact
	)
	for _, sf := range p.facts {
		if sf.fact.Concept.Keyword != concept.Keyword || !scopeMatches(sf.scope, scope) {
			continue
		}
		if sf.subject > subject { // more specific than requested: invisible
			continue
		}
		if !haveBest || sf.subject.MoreSpecificThan(best) {
			best = sf.subject
			haveBest = true
			collected = []Fact{sf.fact}
		} else if sf.subject == best {
			collected = append(collected, sf.fact)
		}
	}

	if concept.Arity == Single && len(collected) > 1 {
		collected = collected[len(collected)-1:]
	}

	return collected, nil
}

// LoadAll implements Provider, returning one resolved entry per concept.
func (p *InMemoryProvider) LoadAll(ctx context.Context, subject Subject, scope Scope) ([]Fact, error) {
	p.mu.RLock()
	concepts := make(map[string]Concept)
	for _, sf := range p.facts {
		if scopeMatches(sf.scope, scope) && sf.subject <= subject {
			concepts[sf.fact.Concept.Keyword] = sf.fact.Concept
		}
	}
	p.mu.RUnlock()

	var out []Fact
	for _, c := range concepts {
		facts, err := p.Load(ctx, c, subject, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, facts...)
	}
	return out, nil
}

// LoadByDescription implements Provider using substring matching over
// concept descriptions and fact values.
func (p *InMemoryProvider) LoadByDescription(_ context.Context, text string, subject Subject, scope Scope) ([]Fact, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Fact
	for _, sf := range p.facts {
		if !scopeMatches(sf.scope, scope) || sf.subject > subject {
			continue
		}
		if factMatches(sf.fact, text) {
			out = append(out, sf.fact)
		}
	}
	return out, nil
}

func factMatches(f Fact, text string) bool {
	if text == "" || strings.Contains(f.Concept.Description, text) {
		return true
	}
	for _, v := range f.Values {
		if strings.Contains(v, text) {
			return true
		}
	}
	return false
}

// scopeMatches reports whether a stored scope satisfies the requested scope.
// The global (empty) scope matches everything in either direction.
func scopeMatches(stored, requested Scope) bool {
	return stored == GlobalScope || requested == GlobalScope || stored == requested
}

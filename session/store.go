// Package session implements the single-writer session store guarding a
// prompt. Writers are serialized with FIFO fairness; readers never block and
// observe only committed state.
package session

import (
	"context"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/tool"
)

// Store guards one prompt and its tool list. At most one write session is
// open at a time; a second AcquireWrite blocks until the first is released.
// Read sessions never block and return a snapshot consistent with the last
// committed write, never a view of in-flight mutations.
type Store struct {
	// writeSem serializes writers. Goroutines blocked on the channel are
	// served in FIFO order by the runtime.
	writeSem chan struct{}

	mu        sync.RWMutex
	committed *core.Prompt
	tools     []tool.Tool
}

// NewStore creates a store over the given prompt and tool list. The prompt
// becomes the first committed snapshot; the caller must not mutate it
// afterwards except through write sessions.
func NewStore(prompt *core.Prompt, tools []tool.Tool) *Store {
	if prompt == nil {
		prompt = core.NewPrompt()
	}
	s := &Store{
		writeSem:  make(chan struct{}, 1),
		committed: prompt.Clone(),
		tools:     append([]tool.Tool(nil), tools...),
	}
	return s
}

// AcquireWrite opens a write session, blocking until any open write session
// is released. Cancellation while waiting returns ctx.Err() without granting
// the session.
func (s *Store) AcquireWrite(ctx context.Context) (*WriteSession, error) {
	select {
	case s.writeSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	working := s.committed.Clone()
	workingTools := append([]tool.Tool(nil), s.tools...)
	s.mu.RUnlock()

	return &WriteSession{
		store:  s,
		prompt: working,
		tools:  workingTools,
	}, nil
}

// AcquireRead returns a snapshot of the last committed state. It never
// blocks and never blocks a concurrent writer.
func (s *Store) AcquireRead() *ReadSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &ReadSession{
		messages: s.committed.Messages(),
		tools:    append([]tool.Tool(nil), s.tools...),
	}
}

// commit publishes the working state as the new committed snapshot and
// releases the write slot.
func (s *Store) commit(prompt *core.Prompt, tools []tool.Tool) {
	s.mu.Lock()
	s.committed = prompt.Clone()
	s.tools = append([]tool.Tool(nil), tools...)
	s.mu.Unlock()
	<-s.writeSem
}

// release frees the write slot without publishing.
func (s *Store) release() {
	<-s.writeSem
}

// WriteSession is a scoped exclusive mutation handle. All mutations apply to
// a working copy; Commit publishes them atomically, Rollback discards them.
// Exactly one of Commit or Rollback must end the session; Rollback after
// Commit is a no-op, which makes `defer ws.Rollback()` safe on every exit
// path.
type WriteSession struct {
	store  *Store
	prompt *core.Prompt
	tools  []tool.Tool
	done   bool
}

// Prompt returns the working prompt for direct mutation.
func (w *WriteSession) Prompt() *core.Prompt { return w.prompt }

// Tools returns the working tool list.
func (w *WriteSession) Tools() []tool.Tool { return w.tools }

// ReplaceTools swaps the working tool list.
func (w *WriteSession) ReplaceTools(tools []tool.Tool) {
	w.tools = append([]tool.Tool(nil), tools...)
}

// Append appends messages to the working prompt.
func (w *WriteSession) Append(msgs ...core.Message) {
	w.prompt.Append(msgs...)
}

// Commit atomically publishes the working state as the committed snapshot
// and releases the session. Committing a finished session fails with
// SessionConflictError.
func (w *WriteSession) Commit() error {
	if w.done {
		return &core.SessionConflictError{Reason: "commit on released write session"}
	}
	w.done = true
	w.store.commit(w.prompt, w.tools)
	return nil
}

// Rollback discards uncommitted mutations and releases the session. It is a
// no-op on an already finished session.
func (w *WriteSession) Rollback() {
	if w.done {
		return
	}
	w.done = true
	w.store.release()
}

// ReadSession is an immutable snapshot of committed state.
type ReadSession struct {
	messages []core.Message
	tools    []tool.Tool
}

// Messages returns the committed message sequence.
func (r *ReadSession) Messages() []core.Message { return r.messages }

// Tools returns the committed tool list.
func (r *ReadSession) Tools() []tool.Tool { return r.tools }

package core

// Prompt is an ordered message sequence. Insertion order is meaningful and is
// never reordered; messages are immutable once appended. A Prompt value is
// not safe for concurrent mutation by itself: all mutation goes through a
// held write session (see the session package).
type Prompt struct {
	messages []Message
	system   []Message // original system messages, restored by Clear
}

// NewPrompt creates a prompt seeded with the given system messages. The
// originals are remembered so Clear can restore them later.
func NewPrompt(system ...Message) *Prompt {
	p := &Prompt{}
	for _, m := range system {
		m.Kind = KindSystem
		p.system = append(p.system, m)
		p.messages = append(p.messages, m)
	}
	return p
}

// Append adds messages to the end of the sequence.
func (p *Prompt) Append(msgs ...Message) {
	p.messages = append(p.messages, msgs...)
}

// Messages returns a defensive copy of the full sequence.
func (p *Prompt) Messages() []Message {
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Len returns the number of messages.
func (p *Prompt) Len() int { return len(p.messages) }

// Replace swaps the entire message sequence. Used by compression, which
// computes the full replacement before touching the prompt.
func (p *Prompt) Replace(msgs []Message) {
	p.messages = make([]Message, len(msgs))
	copy(p.messages, msgs)
}

// Clear resets the prompt to contain only its original system messages,
// discarding everything accumulated since construction.
func (p *Prompt) Clear() {
	p.messages = make([]Message, len(p.system))
	copy(p.messages, p.system)
}

// Clone returns a deep-enough copy safe for independent mutation. Message
// values are immutable so a slice copy suffices.
func (p *Prompt) Clone() *Prompt {
	c := &Prompt{
		messages: make([]Message, len(p.messages)),
		system:   make([]Message, len(p.system)),
	}
	copy(c.messages, p.messages)
	copy(c.system, p.system)
	return c
}

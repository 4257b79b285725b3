// Package structured turns streamed raw text into a classified event stream.
// Consumers stay agnostic to how classification is produced; the
// line-oriented Classifier is the default producer.
package structured

import (
	"fmt"
	"regexp"
	"strings"
)

// Event is the closed set of classified output events.
type Event interface {
	isEvent()
}

// Header is a markdown-style heading with its level.
type Header struct {
	Level int
	Text  string
}

// Bullet is a single list item.
type Bullet struct {
	Text string
}

// CodeBlock is the full text of one fenced code block.
type CodeBlock struct {
	Text string
}

// LineMatch is a line matching one of the classifier's registered patterns.
type LineMatch struct {
	Pattern string
	Text    string
}

// Finish terminates the stream and carries any unconsumed remainder.
type Finish struct {
	Remainder string
}

func (Header) isEvent()    {}
func (Bullet) isEvent()    {}
func (CodeBlock) isEvent() {}
func (LineMatch) isEvent() {}
func (Finish) isEvent()    {}

// ClassifierOptions configures a Classifier.
type ClassifierOptions struct {
	// Patterns are regular expressions matched against complete lines that
	// are not headers, bullets or fenced code.
	Patterns []string
}

// Classifier consumes text fragments and produces classified events per
// complete line. It recognizes markdown-ish headers, bullets and fenced code
// blocks plus caller-registered line patterns. Not safe for concurrent use;
// feed one stream per classifier.
type Classifier struct {
	patterns  []*regexp.Regexp
	pending   strings.Builder
	inCode    bool
	codeLines []string
	finished  bool
}

// NewClassifier creates a classifier, compiling the registered patterns.
func NewClassifier(optFns ...func(o *ClassifierOptions)) (*Classifier, error) {
	opts := ClassifierOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	c := &Classifier{}
	for _, p := range opts.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		c.patterns = append(c.patterns, re)
	}
	return c, nil
}

// Feed consumes the next text fragment and returns the events produced by
// any lines it completes. Fragments may split lines at arbitrary positions.
func (c *Classifier) Feed(fragment string) []Event {
	if c.finished {
		return nil
	}
	var events []Event
	for {
		idx := strings.IndexByte(fragment, '\n')
		if idx < 0 {
			c.pending.WriteString(fragment)
			return events
		}
		c.pending.WriteString(fragment[:idx])
		line := c.pending.String()
		c.pending.Reset()
		fragment = fragment[idx+1:]

		if ev := c.classifyLine(line); ev != nil {
			events = append(events, ev)
		}
	}
}

// Finish flushes the classifier and returns the terminating event carrying
// any unconsumed remainder (a trailing partial line, or an unclosed code
// block's accumulated text). Further Feed calls are ignored.
func (c *Classifier) Finish() Finish {
	c.finished = true
	remainder := c.pending.String()
	c.pending.Reset()
	if c.inCode {
		remainder = strings.Join(append(c.codeLines, remainder), "\n")
		c.inCode = false
		c.codeLines = nil
	}
	return Finish{Remainder: remainder}
}

func (c *Classifier) classifyLine(line string) Event {
	trimmed := strings.TrimRight(line, "\r")

	if strings.HasPrefix(strings.TrimSpace(trimmed), "```") {
		if c.inCode {
			block := CodeBlock{Text: strings.Join(c.codeLines, "\n")}
			c.inCode = false
			c.codeLines = nil
			return block
		}
		c.inCode = true
		return nil
	}
	if c.inCode {
		c.codeLines = append(c.codeLines, trimmed)
		return nil
	}

	if level, text, ok := parseHeader(trimmed); ok {
		return Header{Level: level, Text: text}
	}
	if text, ok := parseBullet(trimmed); ok {
		return Bullet{Text: text}
	}
	for _, re := range c.patterns {
		if re.MatchString(trimmed) {
			return LineMatch{Pattern: re.String(), Text: trimmed}
		}
	}
	return nil
}

func parseHeader(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	rest := line[level:]
	if !strings.HasPrefix(rest, " ") {
		return 0, "", false
	}
	return level, strings.TrimSpace(rest), true
}

func parseBullet(line string) (string, bool) {
	s := strings.TrimLeft(line, " \t")
	for _, marker := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(s, marker) {
			return strings.TrimSpace(s[len(marker):]), true
		}
	}
	return "", false
}

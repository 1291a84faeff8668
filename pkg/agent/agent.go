// Package agent runs user prompts through a language model.
//
// The Adapter owns the conversation transcript and folds it into every new
// prompt, so the model sees the whole exchange without server-side session
// state. A Runner does the actual model call; OpenAI talks to any
// OpenAI-compatible chat completions endpoint and can call tools, including
// tools executed on the robot through the event stream.
package agent

import (
	"context"
	"strings"
)

// Runner produces a reply for a fully rendered prompt.
type Runner interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one line of the transcript.
type Entry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Transcript is an append-only conversation log. It is not safe for
// concurrent use; the Adapter guards it.
type Transcript struct {
	entries []Entry
}

// Append adds an entry.
func (t *Transcript) Append(role Role, text string) {
	t.entries = append(t.entries, Entry{Role: role, Text: text})
}

// Entries returns a copy of the log.
func (t *Transcript) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Transcript) Len() int { return len(t.entries) }

// String renders the log as "User: ...\nAssistant: ..." turns separated by
// blank lines.
func (t *Transcript) String() string {
	var b strings.Builder
	for i, e := range t.entries {
		if i > 0 {
			if e.Role == RoleAssistant {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		}
		b.WriteString(e.Role.label())
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}

// Render returns the prompt sent for a new user message.
func (t *Transcript) Render(prompt string) string {
	if len(t.entries) == 0 {
		return prompt
	}
	return t.String() + "\n\nUser: " + prompt
}

func (r Role) label() string {
	if r == RoleAssistant {
		return "Assistant"
	}
	return "User"
}

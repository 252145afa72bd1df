package conversation

import (
	"fmt"
	"strings"
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

func (s Speaker) Valid() bool {
	return s == SpeakerUser || s == SpeakerAssistant
}

type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// History is ordered oldest first. It is owned by the caller; nothing in the pipeline
// modifies a History it was given.
type History []Turn

// Exchange is the wire shape clients send: one user message and the reply it got.
type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

func FromExchanges(exchanges []Exchange) History {
	history := make(History, 0, len(exchanges)*2)
	for _, exchange := range exchanges {
		if text := strings.TrimSpace(exchange.User); text != "" {
			history = append(history, Turn{Speaker: SpeakerUser, Text: text})
		}
		if text := strings.TrimSpace(exchange.Assistant); text != "" {
			history = append(history, Turn{Speaker: SpeakerAssistant, Text: text})
		}
	}
	return history
}

// With returns a new history with turns appended; h is left as it was.
func (h History) With(turns ...Turn) History {
	next := make(History, 0, len(h)+len(turns))
	next = append(next, h...)
	return append(next, turns...)
}

// Last returns at most n of the most recent turns as a copy.
func (h History) Last(n int) History {
	if n <= 0 || len(h) <= n {
		return h.With()
	}
	return h[len(h)-n:].With()
}

func (h History) Validate() error {
	for i, turn := range h {
		if !turn.Speaker.Valid() {
			return fmt.Errorf("history turn %d has invalid speaker %q", i, turn.Speaker)
		}
	}
	return nil
}

// Render writes one "speaker: text" line per turn. Newlines inside a turn are flattened
// so every line starts with a speaker tag.
func (h History) Render() string {
	var b strings.Builder
	for _, turn := range h {
		b.WriteString(string(turn.Speaker))
		b.WriteString(": ")
		b.WriteString(strings.Join(strings.Fields(turn.Text), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

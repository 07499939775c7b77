package host

import (
	"encoding/json"
	"strings"
)

// MessagePart is one piece of a world message: Text or RawMessage.
type MessagePart interface {
	render() string
}

// Text is a plain string message part.
type Text string

func (t Text) render() string { return string(t) }

// RawMessage is the host's structured message form.
type RawMessage struct {
	Text      string       `json:"text,omitempty"`
	Translate string       `json:"translate,omitempty"`
	With      []string     `json:"with,omitempty"`
	RawText   []RawMessage `json:"rawtext,omitempty"`
}

// render emits the JSON form, which is what the host prints for raw text.
func (m RawMessage) render() string {
	b, err := json.Marshal(m)
	if err != nil {
		return m.Text
	}
	return string(b)
}

func renderMessage(parts []MessagePart) string {
	var b strings.Builder
	for _, p := range parts {
		if p == nil {
			continue
		}
		b.WriteString(p.render())
	}
	return b.String()
}

package host

import "github.com/roach88/hostsim/internal/policy"

// World is the "world" namespace.
type World struct {
	env *Environment

	AfterEvents  *Events
	BeforeEvents *Events
}

// SendMessage broadcasts a chat message. It is world mutation: forbidden
// everywhere except phase Normal under the default policy. The rendered
// message goes to the logger and to observers as a RecordMessage.
func (w *World) SendMessage(parts ...MessagePart) error {
	e := w.env
	if e.closed {
		return ErrClosed
	}
	if err := e.guard(policy.OpSendMessage); err != nil {
		return err
	}

	e.publish(Record{Kind: RecordMessage, Body: renderMessage(parts)})
	return nil
}

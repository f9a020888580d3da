package domain

import "fmt"

// Envelope is the transport wrapper around exactly one message (or an opaque
// encoded payload). It carries only what is needed to deliver it and has no
// awareness of dialogue state.
type Envelope struct {
	To       string   `json:"to"`
	Sender   string   `json:"sender"`
	Protocol string   `json:"protocol"`
	Message  *Message `json:"message,omitempty"`
	Payload  []byte   `json:"payload,omitempty"`
}

// NewEnvelope wraps a message for transport.
func NewEnvelope(to, sender, protocol string, msg *Message) *Envelope {
	return &Envelope{To: to, Sender: sender, Protocol: protocol, Message: msg}
}

// Validate checks the envelope is deliverable.
func (e *Envelope) Validate() error {
	if e.To == "" {
		return fmt.Errorf("envelope has no destination")
	}
	if e.Message == nil && len(e.Payload) == 0 {
		return fmt.Errorf("envelope carries neither message nor payload")
	}
	return nil
}

func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{to=%s sender=%s protocol=%s}", e.To, e.Sender, e.Protocol)
}

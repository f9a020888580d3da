package domain

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Performative is the speech-act tag of a message, defining its intent.
type Performative string

// String returns the raw tag.
func (p Performative) String() string { return string(p) }

const (
	// StartingMessageID is the id of the first message in every dialogue.
	StartingMessageID = 1

	// StartingTarget is the target of the first message in every dialogue.
	StartingTarget = 0

	// UnassignedReference marks the half of a dialogue reference that has not
	// been assigned yet.
	UnassignedReference = ""
)

// DialogueReference is the two-part identifier naming a dialogue. The starter
// id is assigned by whichever side sends the first message; the responder id
// stays empty until the first reply is sent.
type DialogueReference struct {
	StarterID   string
	ResponderID string
}

// NewDialogueReference builds a reference from its two halves.
func NewDialogueReference(starterID, responderID string) DialogueReference {
	return DialogueReference{StarterID: starterID, ResponderID: responderID}
}

// IsComplete reports whether both halves of the reference are assigned.
func (r DialogueReference) IsComplete() bool {
	return r.StarterID != UnassignedReference && r.ResponderID != UnassignedReference
}

// IsEmpty reports whether neither half of the reference is assigned.
func (r DialogueReference) IsEmpty() bool {
	return r.StarterID == UnassignedReference && r.ResponderID == UnassignedReference
}

// Incomplete returns the reference with the responder half cleared.
func (r DialogueReference) Incomplete() DialogueReference {
	return DialogueReference{StarterID: r.StarterID, ResponderID: UnassignedReference}
}

// MarshalJSON encodes the reference as a pair of strings, the wire form every
// concrete protocol carries.
func (r DialogueReference) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{r.StarterID, r.ResponderID})
}

// UnmarshalJSON decodes the pair-of-strings wire form.
func (r *DialogueReference) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("failed to decode dialogue reference: %w", err)
	}
	r.StarterID, r.ResponderID = pair[0], pair[1]
	return nil
}

func (r DialogueReference) String() string {
	return fmt.Sprintf("(%s,%s)", r.StarterID, r.ResponderID)
}

// Message is one immutable speech-act inside a dialogue. Protocol-specific
// payload fields live in Content and are opaque to the core; only the
// protocol specification's content-arity rules look at them.
type Message struct {
	Performative Performative      `json:"performative"`
	Reference    DialogueReference `json:"dialogue_reference"`
	MessageID    int               `json:"message_id"`
	Target       int               `json:"target"`
	Sender       string            `json:"sender,omitempty"`
	To           string            `json:"to,omitempty"`
	Content      map[string]any    `json:"content,omitempty"`
}

// Validate checks the structural wire contract shared by all protocols.
func (m *Message) Validate() error {
	if m.Performative == "" {
		return fmt.Errorf("%w: empty performative", ErrUnknownPerformative)
	}
	if m.MessageID < StartingMessageID {
		return fmt.Errorf("%w: message_id %d < %d", ErrSequenceViolation, m.MessageID, StartingMessageID)
	}
	if m.Target < StartingTarget {
		return fmt.Errorf("%w: negative target %d", ErrSequenceViolation, m.Target)
	}
	if (m.Target == StartingTarget) != (m.MessageID == StartingMessageID) {
		return fmt.Errorf("%w: target %d does not match message_id %d", ErrSequenceViolation, m.Target, m.MessageID)
	}
	return nil
}

// DecodeContent maps the generic content fields onto a typed struct.
func (m *Message) DecodeContent(out any) error {
	if err := mapstructure.Decode(m.Content, out); err != nil {
		return fmt.Errorf("failed to decode %q content: %w", m.Performative, err)
	}
	return nil
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{performative=%s ref=%s id=%d target=%d sender=%s to=%s}",
		m.Performative, m.Reference, m.MessageID, m.Target, m.Sender, m.To)
}

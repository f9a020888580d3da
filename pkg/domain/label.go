package domain

import (
	"fmt"
	"strings"
)

// DialogueLabel is the identity of a conversation: its reference plus the two
// endpoint addresses. Labels are comparable and used as map keys.
type DialogueLabel struct {
	Reference    DialogueReference
	Counterparty string
	Starter      string
}

// NewDialogueLabel builds a label.
func NewDialogueLabel(ref DialogueReference, counterparty, starter string) DialogueLabel {
	return DialogueLabel{Reference: ref, Counterparty: counterparty, Starter: starter}
}

// Incomplete returns the label with the responder half of the reference
// cleared, the form a self-initiated dialogue is first registered under.
func (l DialogueLabel) Incomplete() DialogueLabel {
	return DialogueLabel{
		Reference:    l.Reference.Incomplete(),
		Counterparty: l.Counterparty,
		Starter:      l.Starter,
	}
}

// IsComplete reports whether the responder half of the reference is assigned.
func (l DialogueLabel) IsComplete() bool {
	return l.Reference.IsComplete()
}

func (l DialogueLabel) String() string {
	return strings.Join([]string{
		l.Reference.StarterID,
		l.Reference.ResponderID,
		l.Counterparty,
		l.Starter,
	}, "/")
}

// ParseDialogueLabel parses the string form produced by String.
func ParseDialogueLabel(s string) (DialogueLabel, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 4 {
		return DialogueLabel{}, fmt.Errorf("invalid dialogue label %q", s)
	}
	return DialogueLabel{
		Reference:    NewDialogueReference(parts[0], parts[1]),
		Counterparty: parts[2],
		Starter:      parts[3],
	}, nil
}

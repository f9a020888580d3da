package domain

import (
	"fmt"
	"slices"
)

// Role is an enumerated participant role in a dialogue, fixed for the
// conversation's lifetime.
type Role string

// EndState is an enumerated terminal outcome of a dialogue.
type EndState string

// ProtocolSpec declares, for one conversation type, the legal initial
// speech-acts, the terminal speech-acts with their outcomes, the
// reply-adjacency table, the participant roles and the required content
// fields per performative. It is pure data and safe for concurrent reads.
type ProtocolSpec struct {
	// Name identifies the protocol for routing and logging.
	Name string

	Roles     []Role
	EndStates []EndState

	// Initial lists the performatives allowed to open a dialogue.
	Initial []Performative

	// Terminal maps each terminal performative to the end state it records.
	Terminal map[Performative]EndState

	// ValidReplies maps a performative to the performatives allowed to reply
	// to it. Every performative of the protocol must appear as a key, with an
	// empty slice for terminal acts.
	ValidReplies map[Performative][]Performative

	// RequiredContent maps a performative to the content keys it must carry.
	RequiredContent map[Performative][]string
}

// Validate checks the specification is internally consistent.
func (s *ProtocolSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("protocol spec has no name")
	}
	if len(s.Initial) == 0 {
		return fmt.Errorf("protocol %s: no initial performatives", s.Name)
	}
	for _, p := range s.Initial {
		if _, ok := s.ValidReplies[p]; !ok {
			return fmt.Errorf("protocol %s: initial performative %q missing from reply table", s.Name, p)
		}
	}
	for p, end := range s.Terminal {
		if _, ok := s.ValidReplies[p]; !ok {
			return fmt.Errorf("protocol %s: terminal performative %q missing from reply table", s.Name, p)
		}
		if !slices.Contains(s.EndStates, end) {
			return fmt.Errorf("protocol %s: terminal performative %q maps to unknown end state %q", s.Name, p, end)
		}
	}
	for p, replies := range s.ValidReplies {
		for _, r := range replies {
			if _, ok := s.ValidReplies[r]; !ok {
				return fmt.Errorf("protocol %s: %q allows reply %q which is not a known performative", s.Name, p, r)
			}
		}
	}
	return nil
}

// Contains reports whether the performative belongs to the protocol.
func (s *ProtocolSpec) Contains(p Performative) bool {
	_, ok := s.ValidReplies[p]
	return ok
}

// IsInitial reports whether the performative may open a dialogue.
func (s *ProtocolSpec) IsInitial(p Performative) bool {
	return slices.Contains(s.Initial, p)
}

// IsTerminal reports whether the performative ends a dialogue.
func (s *ProtocolSpec) IsTerminal(p Performative) bool {
	_, ok := s.Terminal[p]
	return ok
}

// EndStateFor returns the end state recorded when the dialogue terminates
// with the given performative.
func (s *ProtocolSpec) EndStateFor(p Performative) (EndState, bool) {
	end, ok := s.Terminal[p]
	return end, ok
}

// RepliesTo returns the performatives allowed as replies to p.
func (s *ProtocolSpec) RepliesTo(p Performative) ([]Performative, bool) {
	replies, ok := s.ValidReplies[p]
	return replies, ok
}

// IsValidReply reports whether reply is allowed as an answer to target.
func (s *ProtocolSpec) IsValidReply(target, reply Performative) bool {
	replies, ok := s.ValidReplies[target]
	return ok && slices.Contains(replies, reply)
}

// CheckContent enforces the content-arity rules for the performative.
func (s *ProtocolSpec) CheckContent(p Performative, content map[string]any) error {
	if !s.Contains(p) {
		return fmt.Errorf("%w: %q not in protocol %s", ErrUnknownPerformative, p, s.Name)
	}
	for _, key := range s.RequiredContent[p] {
		if _, ok := content[key]; !ok {
			return fmt.Errorf("%w: %q requires %q", ErrMissingContent, p, key)
		}
	}
	return nil
}

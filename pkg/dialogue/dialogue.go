package dialogue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Dialogue maintains the state of one conversation: its label, the role of
// the local endpoint, the ordered message history and the terminal flag.
// All mutation goes through Update and Reply.
type Dialogue struct {
	mu sync.Mutex

	label         domain.DialogueLabel
	incomplete    domain.DialogueLabel
	selfAddress   string
	role          domain.Role
	spec          *domain.ProtocolSpec
	selfInitiated bool

	outgoing []*domain.Message
	incoming []*domain.Message

	terminal bool
	endState domain.EndState

	// onTerminal is set by the owning Dialogues engine so end states are
	// recorded no matter whether the closing act arrives via Update or is
	// authored locally via Reply. Called outside the dialogue lock.
	onTerminal func(*Dialogue)
}

func newDialogue(label domain.DialogueLabel, selfAddress string, role domain.Role, spec *domain.ProtocolSpec, selfInitiated bool) *Dialogue {
	return &Dialogue{
		label:         label,
		incomplete:    label.Incomplete(),
		selfAddress:   selfAddress,
		role:          role,
		spec:          spec,
		selfInitiated: selfInitiated,
	}
}

// Label returns the dialogue's current label. For a self-initiated dialogue
// it stays incomplete until the counterparty's first reply arrives.
func (d *Dialogue) Label() domain.DialogueLabel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.label
}

// IncompleteLabel returns the label form with the responder half cleared.
func (d *Dialogue) IncompleteLabel() domain.DialogueLabel {
	return d.incomplete
}

// Role returns the local endpoint's role, fixed for the dialogue's lifetime.
func (d *Dialogue) Role() domain.Role { return d.role }

// Counterparty returns the remote endpoint's address.
func (d *Dialogue) Counterparty() string { return d.label.Counterparty }

// IsSelfInitiated reports whether the local endpoint sent the first message.
func (d *Dialogue) IsSelfInitiated() bool { return d.selfInitiated }

// IsTerminal reports whether the dialogue has reached an end state.
func (d *Dialogue) IsTerminal() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terminal
}

// EndState returns the recorded outcome; valid only once IsTerminal is true.
func (d *Dialogue) EndState() domain.EndState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endState
}

// LastMessage returns the most recent message on either side, or nil.
func (d *Dialogue) LastMessage() *domain.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastLocked()
}

// LastIncomingMessage returns the most recent incoming message, or nil.
func (d *Dialogue) LastIncomingMessage() *domain.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.incoming) == 0 {
		return nil
	}
	return d.incoming[len(d.incoming)-1]
}

// LastOutgoingMessage returns the most recent outgoing message, or nil.
func (d *Dialogue) LastOutgoingMessage() *domain.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.outgoing) == 0 {
		return nil
	}
	return d.outgoing[len(d.outgoing)-1]
}

// GetMessage returns the message with the given id, or nil.
func (d *Dialogue) GetMessage(messageID int) *domain.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.messageLocked(messageID)
}

// History returns all messages ordered by message id.
func (d *Dialogue) History() []*domain.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	all := make([]*domain.Message, 0, len(d.incoming)+len(d.outgoing))
	all = append(all, d.incoming...)
	all = append(all, d.outgoing...)
	sort.Slice(all, func(i, j int) bool { return all[i].MessageID < all[j].MessageID })
	return all
}

func (d *Dialogue) lastLocked() *domain.Message {
	var last *domain.Message
	if n := len(d.incoming); n > 0 {
		last = d.incoming[n-1]
	}
	if n := len(d.outgoing); n > 0 {
		out := d.outgoing[n-1]
		if last == nil || out.MessageID > last.MessageID {
			last = out
		}
	}
	return last
}

func (d *Dialogue) messageLocked(messageID int) *domain.Message {
	for _, m := range d.outgoing {
		if m.MessageID == messageID {
			return m
		}
	}
	for _, m := range d.incoming {
		if m.MessageID == messageID {
			return m
		}
	}
	return nil
}

// Update appends the message to the history if it is a legal next step:
// the id must follow the last message by exactly one, the target must name a
// message already in the history, the performative must be a valid reply to
// the target's performative, and required content must be present. On the
// closing act the dialogue is marked terminal. Violations are reported with
// the sentinel errors of the domain package and never mutate state.
func (d *Dialogue) Update(msg *domain.Message) error {
	becameTerminal, err := d.update(msg)
	if err != nil {
		return err
	}
	if becameTerminal && d.onTerminal != nil {
		d.onTerminal(d)
	}
	return nil
}

func (d *Dialogue) update(msg *domain.Message) (bool, error) {
	if err := msg.Validate(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.terminal {
		return false, fmt.Errorf("%w: dialogue %s already terminal", domain.ErrSequenceViolation, d.label)
	}
	if msg.Reference.StarterID != d.label.Reference.StarterID {
		return false, fmt.Errorf("%w: reference %s does not belong to dialogue %s",
			domain.ErrSequenceViolation, msg.Reference, d.label)
	}

	isIncoming := msg.Sender != d.selfAddress
	if isIncoming && msg.Sender != d.label.Counterparty {
		return false, fmt.Errorf("%w: sender %s is not the counterparty %s",
			domain.ErrSequenceViolation, msg.Sender, d.label.Counterparty)
	}
	if !isIncoming && msg.To != d.label.Counterparty {
		return false, fmt.Errorf("%w: destination %s is not the counterparty %s",
			domain.ErrSequenceViolation, msg.To, d.label.Counterparty)
	}

	last := d.lastLocked()
	if last == nil {
		if msg.MessageID != domain.StartingMessageID {
			return false, fmt.Errorf("%w: first message must have id %d, got %d",
				domain.ErrSequenceViolation, domain.StartingMessageID, msg.MessageID)
		}
		if !d.spec.IsInitial(msg.Performative) {
			return false, fmt.Errorf("%w: %q cannot open a %s dialogue",
				domain.ErrUnknownPerformative, msg.Performative, d.spec.Name)
		}
	} else {
		if msg.MessageID != last.MessageID+1 {
			return false, fmt.Errorf("%w: expected message_id %d, got %d",
				domain.ErrSequenceViolation, last.MessageID+1, msg.MessageID)
		}
		target := d.messageLocked(msg.Target)
		if msg.Target < domain.StartingMessageID || target == nil {
			return false, fmt.Errorf("%w: target %d not present in dialogue %s",
				domain.ErrSequenceViolation, msg.Target, d.label)
		}
		if !d.spec.Contains(msg.Performative) {
			return false, fmt.Errorf("%w: %q not in protocol %s",
				domain.ErrUnknownPerformative, msg.Performative, d.spec.Name)
		}
		if !d.spec.IsValidReply(target.Performative, msg.Performative) {
			return false, fmt.Errorf("%w: %q is not a valid reply to %q",
				domain.ErrSequenceViolation, msg.Performative, target.Performative)
		}
	}
	if err := d.spec.CheckContent(msg.Performative, msg.Content); err != nil {
		return false, err
	}

	if isIncoming {
		d.incoming = append(d.incoming, msg)
	} else {
		d.outgoing = append(d.outgoing, msg)
	}

	if end, ok := d.spec.EndStateFor(msg.Performative); ok {
		d.terminal = true
		d.endState = end
		return true, nil
	}
	return false, nil
}

// Reply constructs the next outgoing message answering target, routes it
// through Update so the history bookkeeping stays authoritative, and returns
// it ready to be wrapped in an envelope.
func (d *Dialogue) Reply(performative domain.Performative, target *domain.Message, content map[string]any) (*domain.Message, error) {
	d.mu.Lock()
	last := d.lastLocked()
	ref := d.label.Reference
	counterparty := d.label.Counterparty
	d.mu.Unlock()

	if last == nil {
		return nil, fmt.Errorf("%w: cannot reply in an empty dialogue", domain.ErrSequenceViolation)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: reply target is nil", domain.ErrSequenceViolation)
	}

	msg := &domain.Message{
		Performative: performative,
		Reference:    ref,
		MessageID:    last.MessageID + 1,
		Target:       target.MessageID,
		Sender:       d.selfAddress,
		To:           counterparty,
		Content:      content,
	}
	if err := d.Update(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// updateLabel promotes an incomplete self-initiated label once the
// counterparty's first reply carries the completed reference.
func (d *Dialogue) updateLabel(complete domain.DialogueLabel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.label.IsComplete() || !complete.IsComplete() {
		return fmt.Errorf("%w: label %s cannot be promoted to %s",
			domain.ErrSequenceViolation, d.label, complete)
	}
	d.label = complete
	return nil
}

func (d *Dialogue) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("Dialogue{label=%s role=%s terminal=%t}", d.label, d.role, d.terminal)
}

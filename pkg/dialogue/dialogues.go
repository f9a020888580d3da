package dialogue

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// RoleResolver infers the local endpoint's role from the first message of a
// dialogue, seen from either the sender's or the receiver's perspective.
type RoleResolver func(first *domain.Message, selfAddress string) domain.Role

// Dialogues is the keyed store of all dialogues for one local endpoint. It
// resolves incoming messages to existing dialogues or creates new ones,
// creates outgoing first messages, and aggregates end-state statistics.
type Dialogues struct {
	selfAddress string
	spec        *domain.ProtocolSpec
	roleFrom    RoleResolver
	logger      *slog.Logger

	keepTerminal bool
	nonce        func() string

	mu         sync.Mutex
	active     map[domain.DialogueLabel]*Dialogue
	complete   map[domain.DialogueLabel]domain.DialogueLabel // incomplete -> complete
	terminated map[domain.DialogueLabel]*Dialogue

	stats *Stats
}

// Option configures a Dialogues engine.
type Option func(*Dialogues)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ds *Dialogues) { ds.logger = logger }
}

// WithKeepTerminal retains terminal dialogues read-only instead of dropping
// them after eviction from the active table.
func WithKeepTerminal() Option {
	return func(ds *Dialogues) { ds.keepTerminal = true }
}

// WithNonce overrides the reference id generator, mainly for tests.
func WithNonce(nonce func() string) Option {
	return func(ds *Dialogues) { ds.nonce = nonce }
}

// New creates a Dialogues engine for the given local endpoint address.
func New(selfAddress string, spec *domain.ProtocolSpec, roleFrom RoleResolver, opts ...Option) (*Dialogues, error) {
	if selfAddress == "" {
		return nil, fmt.Errorf("self address must not be empty")
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid protocol spec: %w", err)
	}
	if roleFrom == nil {
		return nil, fmt.Errorf("role resolver must not be nil")
	}

	ds := &Dialogues{
		selfAddress: selfAddress,
		spec:        spec,
		roleFrom:    roleFrom,
		logger:      logging.NewNop(),
		nonce: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
		active:     make(map[domain.DialogueLabel]*Dialogue),
		complete:   make(map[domain.DialogueLabel]domain.DialogueLabel),
		terminated: make(map[domain.DialogueLabel]*Dialogue),
		stats:      NewStats(spec.EndStates),
	}
	for _, opt := range opts {
		opt(ds)
	}
	return ds, nil
}

// SelfAddress returns the local endpoint address dialogues are kept for.
func (ds *Dialogues) SelfAddress() string { return ds.selfAddress }

// Spec returns the protocol specification the engine enforces.
func (ds *Dialogues) Spec() *domain.ProtocolSpec { return ds.spec }

// Stats returns the aggregate end-state statistics.
func (ds *Dialogues) Stats() *Stats { return ds.stats }

// ActiveCount returns the number of dialogues in the active table.
func (ds *Dialogues) ActiveCount() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return len(ds.active)
}

// Create starts a self-initiated dialogue with the counterparty, producing
// the initial message (message_id 1, target 0) under a fresh starter id.
func (ds *Dialogues) Create(counterparty string, performative domain.Performative, content map[string]any) (*domain.Message, *Dialogue, error) {
	if counterparty == "" || counterparty == ds.selfAddress {
		return nil, nil, fmt.Errorf("invalid counterparty %q", counterparty)
	}
	if !ds.spec.IsInitial(performative) {
		return nil, nil, fmt.Errorf("%w: %q cannot open a %s dialogue",
			domain.ErrUnknownPerformative, performative, ds.spec.Name)
	}

	ref := domain.NewDialogueReference(ds.nonce(), domain.UnassignedReference)
	msg := &domain.Message{
		Performative: performative,
		Reference:    ref,
		MessageID:    domain.StartingMessageID,
		Target:       domain.StartingTarget,
		Sender:       ds.selfAddress,
		To:           counterparty,
		Content:      content,
	}

	label := domain.NewDialogueLabel(ref, counterparty, ds.selfAddress)
	d := newDialogue(label, ds.selfAddress, ds.roleFrom(msg, ds.selfAddress), ds.spec, true)
	d.onTerminal = ds.recordTerminal

	ds.mu.Lock()
	if _, exists := ds.active[label]; exists {
		ds.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: label %s already present", domain.ErrSequenceViolation, label)
	}
	ds.active[label] = d
	ds.mu.Unlock()

	if err := d.Update(msg); err != nil {
		ds.mu.Lock()
		delete(ds.active, label)
		ds.mu.Unlock()
		return nil, nil, err
	}

	ds.logger.Debug("dialogue created", "label", label.String(), "role", d.Role())
	return msg, d, nil
}

// Update resolves an incoming message to its dialogue and appends it. A
// message opening a new conversation creates and registers the dialogue; a
// continuation is matched by complete label, falling back to the incomplete
// index. Violations are returned as recoverable sentinel errors; callers are
// expected to translate ErrDialogueNotFound and ErrSequenceViolation into a
// protocol-level error reply to the offending sender.
func (ds *Dialogues) Update(msg *domain.Message) (*Dialogue, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.Sender == "" {
		return nil, fmt.Errorf("message sender is not set: %s", msg)
	}
	if msg.Sender == ds.selfAddress {
		return nil, fmt.Errorf("message %s is not incoming; self-authored messages go through Create and Reply", msg)
	}

	ref := msg.Reference
	if ref.IsEmpty() {
		return nil, fmt.Errorf("%w: empty dialogue reference", domain.ErrDialogueNotFound)
	}

	var (
		d   *Dialogue
		err error
	)
	switch {
	case ref.ResponderID == domain.UnassignedReference && msg.MessageID == domain.StartingMessageID:
		d, err = ds.createFromFirstMessage(msg)
	default:
		if ref.IsComplete() {
			ds.promoteIncomplete(msg)
		}
		d = ds.lookup(msg)
		if d == nil {
			err = fmt.Errorf("%w: no dialogue for reference %s from %s",
				domain.ErrDialogueNotFound, ref, msg.Sender)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := d.Update(msg); err != nil {
		return nil, err
	}
	return d, nil
}

// GetDialogue returns the dialogue the message belongs to, or nil.
func (ds *Dialogues) GetDialogue(msg *domain.Message) *Dialogue {
	return ds.lookup(msg)
}

// GetDialogueFromLabel returns the active dialogue registered under label.
func (ds *Dialogues) GetDialogueFromLabel(label domain.DialogueLabel) *Dialogue {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if complete, ok := ds.complete[label]; ok {
		label = complete
	}
	return ds.active[label]
}

// GetTerminated returns a retained terminal dialogue, if the retention policy
// keeps them.
func (ds *Dialogues) GetTerminated(label domain.DialogueLabel) *Dialogue {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if complete, ok := ds.complete[label]; ok {
		label = complete
	}
	return ds.terminated[label]
}

// createFromFirstMessage registers an other-initiated dialogue for a valid
// opener, assigning the responder half of the reference exactly once.
func (ds *Dialogues) createFromFirstMessage(msg *domain.Message) (*Dialogue, error) {
	if !ds.spec.IsInitial(msg.Performative) {
		return nil, fmt.Errorf("%w: %q cannot open a %s dialogue",
			domain.ErrUnknownPerformative, msg.Performative, ds.spec.Name)
	}

	counterparty := msg.Sender
	incomplete := domain.NewDialogueLabel(msg.Reference, counterparty, counterparty)
	completeRef := domain.NewDialogueReference(msg.Reference.StarterID, ds.nonce())
	complete := domain.NewDialogueLabel(completeRef, counterparty, counterparty)

	d := newDialogue(complete, ds.selfAddress, ds.roleFrom(msg, ds.selfAddress), ds.spec, false)
	d.onTerminal = ds.recordTerminal

	ds.mu.Lock()
	defer ds.mu.Unlock()
	// A replayed first message reusing a known reference is rejected, never
	// silently merged.
	if _, ok := ds.complete[incomplete]; ok {
		return nil, fmt.Errorf("%w: first message replays reference %s",
			domain.ErrSequenceViolation, msg.Reference)
	}
	if _, ok := ds.active[complete]; ok {
		return nil, fmt.Errorf("%w: label %s already present", domain.ErrSequenceViolation, complete)
	}
	ds.complete[incomplete] = complete
	ds.active[complete] = d

	ds.logger.Debug("dialogue accepted", "label", complete.String(), "role", d.Role())
	return d, nil
}

// promoteIncomplete re-keys a self-initiated dialogue under its complete
// label once the counterparty's first reply carries the full reference.
func (ds *Dialogues) promoteIncomplete(msg *domain.Message) {
	incompleteRef := msg.Reference.Incomplete()
	incomplete := domain.NewDialogueLabel(incompleteRef, msg.Sender, ds.selfAddress)

	ds.mu.Lock()
	defer ds.mu.Unlock()
	d, ok := ds.active[incomplete]
	if !ok {
		return
	}
	complete := domain.NewDialogueLabel(msg.Reference, msg.Sender, ds.selfAddress)
	if _, taken := ds.active[complete]; taken {
		ds.logger.Warn("complete label already present, keeping incomplete dialogue",
			"label", complete.String())
		return
	}
	if err := d.updateLabel(complete); err != nil {
		ds.logger.Warn("failed to promote dialogue label", "label", incomplete.String(), "err", err)
		return
	}
	delete(ds.active, incomplete)
	ds.active[complete] = d
	ds.complete[incomplete] = complete
}

// lookup resolves a dialogue by complete label, falling back to the
// incomplete-label index, trying both the self- and other-initiated forms.
func (ds *Dialogues) lookup(msg *domain.Message) *Dialogue {
	counterparty := msg.Sender
	if counterparty == ds.selfAddress || counterparty == "" {
		counterparty = msg.To
	}

	candidates := []domain.DialogueLabel{
		domain.NewDialogueLabel(msg.Reference, counterparty, ds.selfAddress),
		domain.NewDialogueLabel(msg.Reference, counterparty, counterparty),
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, label := range candidates {
		if complete, ok := ds.complete[label]; ok {
			label = complete
		}
		if d, ok := ds.active[label]; ok {
			return d
		}
	}
	return nil
}

// recordTerminal evicts a finished dialogue from the active table and counts
// its end state, partitioned by who initiated the conversation.
func (ds *Dialogues) recordTerminal(d *Dialogue) {
	label := d.Label()

	ds.mu.Lock()
	delete(ds.active, label)
	delete(ds.active, d.IncompleteLabel())
	if ds.keepTerminal {
		ds.terminated[label] = d
	}
	ds.mu.Unlock()

	ds.stats.Add(d.EndState(), d.IsSelfInitiated())
	ds.logger.Debug("dialogue terminal",
		"label", label.String(), "end_state", string(d.EndState()), "self_initiated", d.IsSelfInitiated())
}

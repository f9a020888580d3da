package dialogue_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/dialogue"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/protocols/negotiation"
)

const (
	buyerAddr  = "agent-buyer"
	sellerAddr = "agent-seller"
)

func newEngine(t *testing.T, selfAddress string, opts ...dialogue.Option) *dialogue.Dialogues {
	t.Helper()
	ds, err := dialogue.New(selfAddress, negotiation.Spec(), negotiation.RoleFromFirstMessage, opts...)
	require.NoError(t, err)
	return ds
}

func TestCreateProducesOpener(t *testing.T) {
	buyer := newEngine(t, buyerAddr)

	msg, dlg, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)

	assert.Equal(t, domain.StartingMessageID, msg.MessageID)
	assert.Equal(t, domain.StartingTarget, msg.Target)
	assert.Equal(t, buyerAddr, msg.Sender)
	assert.Equal(t, sellerAddr, msg.To)
	assert.NotEmpty(t, msg.Reference.StarterID)
	assert.Equal(t, domain.UnassignedReference, msg.Reference.ResponderID)

	assert.Equal(t, negotiation.RoleBuyer, dlg.Role())
	assert.True(t, dlg.IsSelfInitiated())
	assert.False(t, dlg.Label().IsComplete())
	assert.Equal(t, 1, buyer.ActiveCount())
}

func TestCreateRejectsNonInitialPerformative(t *testing.T) {
	buyer := newEngine(t, buyerAddr)

	_, _, err := buyer.Create(sellerAddr, negotiation.Propose, map[string]any{"proposal": "x"})
	assert.True(t, errors.Is(err, domain.ErrUnknownPerformative), "got %v", err)
}

func TestCreateRejectsSelfCounterparty(t *testing.T) {
	buyer := newEngine(t, buyerAddr)

	_, _, err := buyer.Create(buyerAddr, negotiation.CFP, map[string]any{"query": "books"})
	assert.Error(t, err)
}

// relay moves one message from its author's engine into the receiver's.
func relay(t *testing.T, receiver *dialogue.Dialogues, msg *domain.Message) *dialogue.Dialogue {
	t.Helper()
	d, err := receiver.Update(msg)
	require.NoError(t, err)
	return d
}

func TestNegotiationHappyPath(t *testing.T) {
	buyer := newEngine(t, buyerAddr)
	seller := newEngine(t, sellerAddr)

	cfp, buyerDlg, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)

	sellerDlg := relay(t, seller, cfp)
	assert.Equal(t, negotiation.RoleSeller, sellerDlg.Role())
	assert.False(t, sellerDlg.IsSelfInitiated())
	assert.True(t, sellerDlg.Label().IsComplete())

	propose, err := sellerDlg.Reply(negotiation.Propose, cfp, map[string]any{"proposal": "10 FET"})
	require.NoError(t, err)
	assert.Equal(t, 2, propose.MessageID)
	assert.Equal(t, 1, propose.Target)
	assert.True(t, propose.Reference.IsComplete())

	relay(t, buyer, propose)
	// The first reply promotes the buyer's dialogue to its complete label.
	assert.True(t, buyerDlg.Label().IsComplete())
	assert.Equal(t, propose.Reference, buyerDlg.Label().Reference)

	accept, err := buyerDlg.Reply(negotiation.Accept, propose, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, accept.MessageID)

	relay(t, seller, accept)
	matchAccept, err := sellerDlg.Reply(negotiation.MatchAccept, accept, nil)
	require.NoError(t, err)

	relay(t, buyer, matchAccept)
	inform, err := buyerDlg.Reply(negotiation.Inform, matchAccept, map[string]any{"info": "paid"})
	require.NoError(t, err)
	assert.Equal(t, 5, inform.MessageID)

	relay(t, seller, inform)

	assert.True(t, buyerDlg.IsTerminal())
	assert.True(t, sellerDlg.IsTerminal())
	assert.Equal(t, negotiation.EndSuccessful, buyerDlg.EndState())
	assert.Equal(t, negotiation.EndSuccessful, sellerDlg.EndState())

	assert.Equal(t, 0, buyer.ActiveCount())
	assert.Equal(t, 0, seller.ActiveCount())

	assert.Equal(t, 1, buyer.Stats().SelfInitiated()[negotiation.EndSuccessful])
	assert.Equal(t, 1, seller.Stats().OtherInitiated()[negotiation.EndSuccessful])

	history := buyerDlg.History()
	require.Len(t, history, 5)
	for i, m := range history {
		assert.Equal(t, i+1, m.MessageID)
	}
}

func TestDeclineRecordsDeclinedOutcome(t *testing.T) {
	buyer := newEngine(t, buyerAddr)
	seller := newEngine(t, sellerAddr)

	cfp, buyerDlg, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)

	sellerDlg := relay(t, seller, cfp)
	decline, err := sellerDlg.Reply(negotiation.Decline, cfp, nil)
	require.NoError(t, err)

	relay(t, buyer, decline)

	assert.True(t, buyerDlg.IsTerminal())
	assert.Equal(t, negotiation.EndDeclined, buyerDlg.EndState())
	assert.Equal(t, 1, buyer.Stats().SelfInitiated()[negotiation.EndDeclined])
	assert.Equal(t, 1, seller.Stats().OtherInitiated()[negotiation.EndDeclined])
}

func TestReplyNumbersGlobally(t *testing.T) {
	buyer := newEngine(t, buyerAddr)
	seller := newEngine(t, sellerAddr)

	cfp, _, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)

	sellerDlg := relay(t, seller, cfp)
	propose, err := sellerDlg.Reply(negotiation.Propose, cfp, map[string]any{"proposal": "10 FET"})
	require.NoError(t, err)

	// The responder's first message continues the shared numbering.
	assert.Equal(t, cfp.MessageID+1, propose.MessageID)
}

func TestUpdateRejectsSequenceViolations(t *testing.T) {
	buyer := newEngine(t, buyerAddr)
	seller := newEngine(t, sellerAddr)

	cfp, _, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)
	relay(t, seller, cfp)

	t.Run("skipped message id", func(t *testing.T) {
		msg := &domain.Message{
			Performative: negotiation.Propose,
			Reference:    cfp.Reference,
			MessageID:    4,
			Target:       1,
			Sender:       sellerAddr,
			To:           buyerAddr,
			Content:      map[string]any{"proposal": "x"},
		}
		_, err := buyer.Update(msg)
		assert.True(t, errors.Is(err, domain.ErrSequenceViolation), "got %v", err)
	})

	t.Run("target not in history", func(t *testing.T) {
		msg := &domain.Message{
			Performative: negotiation.Propose,
			Reference:    cfp.Reference,
			MessageID:    2,
			Target:       7,
			Sender:       sellerAddr,
			To:           buyerAddr,
			Content:      map[string]any{"proposal": "x"},
		}
		_, err := buyer.Update(msg)
		assert.True(t, errors.Is(err, domain.ErrSequenceViolation), "got %v", err)
	})

	t.Run("reply not adjacent to target", func(t *testing.T) {
		// accept is not a legal answer to cfp.
		msg := &domain.Message{
			Performative: negotiation.Accept,
			Reference:    cfp.Reference,
			MessageID:    2,
			Target:       1,
			Sender:       sellerAddr,
			To:           buyerAddr,
		}
		_, err := buyer.Update(msg)
		assert.True(t, errors.Is(err, domain.ErrSequenceViolation), "got %v", err)
	})

	t.Run("missing required content", func(t *testing.T) {
		msg := &domain.Message{
			Performative: negotiation.Propose,
			Reference:    cfp.Reference,
			MessageID:    2,
			Target:       1,
			Sender:       sellerAddr,
			To:           buyerAddr,
		}
		_, err := buyer.Update(msg)
		assert.True(t, errors.Is(err, domain.ErrMissingContent), "got %v", err)
	})
}

func TestUpdateRejectsUnknownPerformative(t *testing.T) {
	seller := newEngine(t, sellerAddr)

	msg := &domain.Message{
		Performative: "haggle",
		Reference:    domain.NewDialogueReference("ref-1", domain.UnassignedReference),
		MessageID:    1,
		Target:       0,
		Sender:       buyerAddr,
		To:           sellerAddr,
	}
	_, err := seller.Update(msg)
	assert.True(t, errors.Is(err, domain.ErrUnknownPerformative), "got %v", err)
	assert.Equal(t, 0, seller.ActiveCount())
}

func TestUpdateRejectsUnknownDialogue(t *testing.T) {
	buyer := newEngine(t, buyerAddr)

	msg := &domain.Message{
		Performative: negotiation.Propose,
		Reference:    domain.NewDialogueReference("never-seen", "also-never"),
		MessageID:    2,
		Target:       1,
		Sender:       sellerAddr,
		To:           buyerAddr,
		Content:      map[string]any{"proposal": "x"},
	}
	_, err := buyer.Update(msg)
	assert.True(t, errors.Is(err, domain.ErrDialogueNotFound), "got %v", err)
}

func TestUpdateRejectsSelfAuthoredMessage(t *testing.T) {
	buyer := newEngine(t, buyerAddr)

	cfp, _, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)

	_, err = buyer.Update(cfp)
	assert.Error(t, err)
}

func TestReplayedOpenerIsRejected(t *testing.T) {
	buyer := newEngine(t, buyerAddr)
	seller := newEngine(t, sellerAddr)

	cfp, _, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)
	relay(t, seller, cfp)

	// The same opener arriving again must not open a second dialogue.
	_, err = seller.Update(cfp)
	assert.True(t, errors.Is(err, domain.ErrSequenceViolation), "got %v", err)
	assert.Equal(t, 1, seller.ActiveCount())
}

func TestTerminalDialogueRejectsFurtherMessages(t *testing.T) {
	buyer := newEngine(t, buyerAddr, dialogue.WithKeepTerminal())
	seller := newEngine(t, sellerAddr)

	cfp, buyerDlg, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)

	sellerDlg := relay(t, seller, cfp)
	decline, err := sellerDlg.Reply(negotiation.Decline, cfp, nil)
	require.NoError(t, err)
	relay(t, buyer, decline)
	require.True(t, buyerDlg.IsTerminal())

	_, err = buyerDlg.Reply(negotiation.Accept, decline, nil)
	assert.True(t, errors.Is(err, domain.ErrSequenceViolation), "got %v", err)

	// With retention enabled the finished dialogue stays readable.
	retained := buyer.GetTerminated(buyerDlg.Label())
	require.NotNil(t, retained)
	assert.Equal(t, negotiation.EndDeclined, retained.EndState())
}

func TestTerminalDialogueDroppedWithoutRetention(t *testing.T) {
	buyer := newEngine(t, buyerAddr)
	seller := newEngine(t, sellerAddr)

	cfp, buyerDlg, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)

	sellerDlg := relay(t, seller, cfp)
	decline, err := sellerDlg.Reply(negotiation.Decline, cfp, nil)
	require.NoError(t, err)
	relay(t, buyer, decline)

	assert.Nil(t, buyer.GetTerminated(buyerDlg.Label()))
	assert.Equal(t, 0, buyer.ActiveCount())
}

func TestCreateRejectsNonceCollision(t *testing.T) {
	buyer := newEngine(t, buyerAddr, dialogue.WithNonce(func() string { return "fixed" }))

	_, _, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)

	_, _, err = buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	assert.True(t, errors.Is(err, domain.ErrSequenceViolation), "got %v", err)
}

func TestConcurrentDialoguesStayIsolated(t *testing.T) {
	buyer := newEngine(t, buyerAddr)
	seller := newEngine(t, sellerAddr)

	cfp1, dlg1, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "books"})
	require.NoError(t, err)
	cfp2, dlg2, err := buyer.Create(sellerAddr, negotiation.CFP, map[string]any{"query": "maps"})
	require.NoError(t, err)
	require.NotEqual(t, dlg1.Label(), dlg2.Label())

	sdlg1 := relay(t, seller, cfp1)
	sdlg2 := relay(t, seller, cfp2)

	p1, err := sdlg1.Reply(negotiation.Propose, cfp1, map[string]any{"proposal": "10 FET"})
	require.NoError(t, err)
	p2, err := sdlg2.Reply(negotiation.Propose, cfp2, map[string]any{"proposal": "3 FET"})
	require.NoError(t, err)

	relay(t, buyer, p1)
	relay(t, buyer, p2)

	require.Len(t, dlg1.History(), 2)
	require.Len(t, dlg2.History(), 2)
	assert.Equal(t, "10 FET", dlg1.History()[1].Content["proposal"])
	assert.Equal(t, "3 FET", dlg2.History()[1].Content["proposal"])
}

// Package negotiation declares a FIPA-style negotiation protocol: a buyer
// opens with a call-for-proposal, the seller answers with proposals, and the
// dialogue closes on a decline or an inform carrying the traded goods.
package negotiation

import (
	"github.com/aretw0/parley/pkg/dialogue"
	"github.com/aretw0/parley/pkg/domain"
)

// Name identifies the protocol on envelopes.
const Name = "parley/negotiation"

// Performatives of the negotiation protocol.
const (
	CFP         = domain.Performative("cfp")
	Propose     = domain.Performative("propose")
	Accept      = domain.Performative("accept")
	MatchAccept = domain.Performative("match_accept")
	Decline     = domain.Performative("decline")
	Inform      = domain.Performative("inform")
)

// Roles of the two participants.
const (
	RoleBuyer  = domain.Role("buyer")
	RoleSeller = domain.Role("seller")
)

// End states of a negotiation.
const (
	EndSuccessful = domain.EndState("successful")
	EndDeclined   = domain.EndState("declined")
)

// Spec returns the negotiation protocol specification.
func Spec() *domain.ProtocolSpec {
	return &domain.ProtocolSpec{
		Name:      Name,
		Roles:     []domain.Role{RoleBuyer, RoleSeller},
		EndStates: []domain.EndState{EndSuccessful, EndDeclined},
		Initial:   []domain.Performative{CFP},
		Terminal: map[domain.Performative]domain.EndState{
			Decline: EndDeclined,
			Inform:  EndSuccessful,
		},
		ValidReplies: map[domain.Performative][]domain.Performative{
			CFP:         {Propose, Decline},
			Propose:     {Accept, Decline},
			Accept:      {MatchAccept, Decline},
			MatchAccept: {Inform},
			Decline:     {},
			Inform:      {},
		},
		RequiredContent: map[domain.Performative][]string{
			CFP:     {"query"},
			Propose: {"proposal"},
			Inform:  {"info"},
		},
	}
}

// RoleFromFirstMessage assigns buyer to whoever sends the call-for-proposal.
func RoleFromFirstMessage(first *domain.Message, selfAddress string) domain.Role {
	if first.Sender == selfAddress {
		return RoleBuyer
	}
	return RoleSeller
}

var _ dialogue.RoleResolver = RoleFromFirstMessage

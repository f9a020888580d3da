// Package oefsearch declares the search protocol spoken between an agent and
// the directory node: service registration, search requests and their
// results or errors. The channel layer drives the node side of it.
package oefsearch

import (
	"github.com/aretw0/parley/pkg/dialogue"
	"github.com/aretw0/parley/pkg/domain"
)

// Name identifies the protocol on envelopes.
const Name = "parley/oef_search"

// Performatives of the search protocol.
const (
	RegisterService   = domain.Performative("register_service")
	UnregisterService = domain.Performative("unregister_service")
	SearchServices    = domain.Performative("search_services")
	Ping              = domain.Performative("ping")
	SearchResult      = domain.Performative("search_result")
	Success           = domain.Performative("success")
	OefError          = domain.Performative("oef_error")
)

// Roles of the two participants.
const (
	RoleAgent = domain.Role("agent")
	RoleNode  = domain.Role("oef_node")
)

// End states of a search dialogue.
const (
	EndSuccessful = domain.EndState("successful")
	EndFailed     = domain.EndState("failed")
)

// Spec returns the search protocol specification. Every request dialogue is
// a two-step exchange: a request opener answered by one terminal result.
func Spec() *domain.ProtocolSpec {
	return &domain.ProtocolSpec{
		Name:      Name,
		Roles:     []domain.Role{RoleAgent, RoleNode},
		EndStates: []domain.EndState{EndSuccessful, EndFailed},
		Initial:   []domain.Performative{RegisterService, UnregisterService, SearchServices, Ping},
		Terminal: map[domain.Performative]domain.EndState{
			SearchResult: EndSuccessful,
			Success:      EndSuccessful,
			OefError:     EndFailed,
		},
		ValidReplies: map[domain.Performative][]domain.Performative{
			RegisterService:   {Success, OefError},
			UnregisterService: {Success, OefError},
			SearchServices:    {SearchResult, OefError},
			Ping:              {Success, OefError},
			SearchResult:      {},
			Success:           {},
			OefError:          {},
		},
		RequiredContent: map[domain.Performative][]string{
			RegisterService: {"service"},
			SearchServices:  {"query"},
			SearchResult:    {"agents"},
			OefError:        {"operation"},
		},
	}
}

// RoleFromFirstMessage assigns agent to whoever issues the request.
func RoleFromFirstMessage(first *domain.Message, selfAddress string) domain.Role {
	if first.Sender == selfAddress {
		return RoleAgent
	}
	return RoleNode
}

var _ dialogue.RoleResolver = RoleFromFirstMessage

// ServiceDescription is the content of register_service and
// unregister_service requests.
type ServiceDescription struct {
	Key   string `mapstructure:"key" json:"key"`
	Value string `mapstructure:"value" json:"value"`
}

// Query is the content of search_services requests.
type Query struct {
	RangeKM float64             `mapstructure:"range_km" json:"range_km"`
	Filters map[string][]string `mapstructure:"filters" json:"filters,omitempty"`
}

// Result is the content of search_result replies.
type Result struct {
	Agents []string `mapstructure:"agents" json:"agents"`
}

// Error is the content of oef_error replies, naming the failed operation.
type Error struct {
	Operation string `mapstructure:"operation" json:"operation"`
	Message   string `mapstructure:"message" json:"message,omitempty"`
}

package oefsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/domain"
)

func TestSpecIsConsistent(t *testing.T) {
	require.NoError(t, Spec().Validate())
}

func TestEveryRequestIsATwoStepExchange(t *testing.T) {
	s := Spec()

	for _, opener := range s.Initial {
		replies, ok := s.RepliesTo(opener)
		require.True(t, ok)
		for _, r := range replies {
			assert.True(t, s.IsTerminal(r), "%s reply %s must close the dialogue", opener, r)
		}
	}
}

func TestRoleFromFirstMessage(t *testing.T) {
	req := &domain.Message{Performative: SearchServices, Sender: "agent", To: "node", MessageID: 1}

	assert.Equal(t, RoleAgent, RoleFromFirstMessage(req, "agent"))
	assert.Equal(t, RoleNode, RoleFromFirstMessage(req, "node"))
}

func TestContentDecoding(t *testing.T) {
	msg := &domain.Message{
		Performative: SearchServices,
		MessageID:    1,
		Content: map[string]any{
			"query": map[string]any{
				"range_km": 20.0,
				"filters":  map[string][]string{"genus": {"service"}},
			},
		},
	}

	var content struct {
		Query Query `mapstructure:"query"`
	}
	require.NoError(t, msg.DecodeContent(&content))
	assert.Equal(t, 20.0, content.Query.RangeKM)
	assert.Equal(t, []string{"service"}, content.Query.Filters["genus"])
}

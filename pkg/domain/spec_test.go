package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() *ProtocolSpec {
	return &ProtocolSpec{
		Name:      "test/ping",
		Roles:     []Role{"caller", "callee"},
		EndStates: []EndState{"done"},
		Initial:   []Performative{"ping"},
		Terminal:  map[Performative]EndState{"pong": "done"},
		ValidReplies: map[Performative][]Performative{
			"ping": {"pong"},
			"pong": {},
		},
		RequiredContent: map[Performative][]string{
			"ping": {"payload"},
		},
	}
}

func TestProtocolSpecValidate(t *testing.T) {
	require.NoError(t, testSpec().Validate())

	t.Run("missing name", func(t *testing.T) {
		s := testSpec()
		s.Name = ""
		assert.Error(t, s.Validate())
	})
	t.Run("initial not in reply table", func(t *testing.T) {
		s := testSpec()
		s.Initial = []Performative{"hello"}
		assert.Error(t, s.Validate())
	})
	t.Run("terminal with unknown end state", func(t *testing.T) {
		s := testSpec()
		s.Terminal["pong"] = "vanished"
		assert.Error(t, s.Validate())
	})
	t.Run("reply to unknown performative", func(t *testing.T) {
		s := testSpec()
		s.ValidReplies["ping"] = []Performative{"gone"}
		assert.Error(t, s.Validate())
	})
}

func TestProtocolSpecQueries(t *testing.T) {
	s := testSpec()

	assert.True(t, s.Contains("ping"))
	assert.False(t, s.Contains("hello"))
	assert.True(t, s.IsInitial("ping"))
	assert.False(t, s.IsInitial("pong"))
	assert.True(t, s.IsTerminal("pong"))
	assert.False(t, s.IsTerminal("ping"))

	end, ok := s.EndStateFor("pong")
	assert.True(t, ok)
	assert.Equal(t, EndState("done"), end)

	assert.True(t, s.IsValidReply("ping", "pong"))
	assert.False(t, s.IsValidReply("pong", "ping"))
}

func TestProtocolSpecCheckContent(t *testing.T) {
	s := testSpec()

	assert.NoError(t, s.CheckContent("ping", map[string]any{"payload": "x"}))

	err := s.CheckContent("ping", nil)
	assert.True(t, errors.Is(err, ErrMissingContent), "got %v", err)

	err = s.CheckContent("hello", nil)
	assert.True(t, errors.Is(err, ErrUnknownPerformative), "got %v", err)
}

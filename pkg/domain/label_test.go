package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialogueLabelRoundTrip(t *testing.T) {
	label := NewDialogueLabel(NewDialogueReference("starter", "responder"), "agent-b", "agent-a")

	parsed, err := ParseDialogueLabel(label.String())
	require.NoError(t, err)
	assert.Equal(t, label, parsed)
}

func TestDialogueLabelIncomplete(t *testing.T) {
	label := NewDialogueLabel(NewDialogueReference("starter", "responder"), "agent-b", "agent-a")
	incomplete := label.Incomplete()

	assert.True(t, label.IsComplete())
	assert.False(t, incomplete.IsComplete())
	assert.Equal(t, label.Counterparty, incomplete.Counterparty)
	assert.Equal(t, label.Starter, incomplete.Starter)
}

func TestParseDialogueLabelRejectsMalformed(t *testing.T) {
	_, err := ParseDialogueLabel("not-a-label")
	assert.Error(t, err)
}

func TestDialogueLabelAsMapKey(t *testing.T) {
	a := NewDialogueLabel(NewDialogueReference("x", "y"), "b", "a")
	b := NewDialogueLabel(NewDialogueReference("x", "y"), "b", "a")

	m := map[DialogueLabel]int{a: 1}
	assert.Equal(t, 1, m[b])
}

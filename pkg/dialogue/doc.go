// Package dialogue implements the conversation protocol state machine:
// Dialogue holds one ordered conversation, Dialogues is the per-endpoint
// table that assigns conversation identity, enforces legal message
// sequencing against a domain.ProtocolSpec and tracks outcomes.
package dialogue

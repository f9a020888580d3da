package domain

import "errors"

// ErrUnknownPerformative is returned when a dialogue is started or continued
// with a speech-act the protocol specification does not allow at that point.
var ErrUnknownPerformative = errors.New("unknown performative")

// ErrDialogueNotFound is returned when a message references no known dialogue
// and is not a valid opener.
var ErrDialogueNotFound = errors.New("dialogue not found")

// ErrSequenceViolation is returned when a message fails the id, target or
// reply-adjacency checks of its dialogue.
var ErrSequenceViolation = errors.New("sequence violation")

// ErrMissingContent is returned when a message lacks a content field required
// by its performative.
var ErrMissingContent = errors.New("missing required content")

// ErrUnreachable is returned when the external endpoint cannot be reached.
var ErrUnreachable = errors.New("endpoint unreachable")

// ErrBadResponse is returned when the external endpoint answers with a
// malformed or unsuccessful response.
var ErrBadResponse = errors.New("bad endpoint response")

// ErrConnectAttemptsExhausted is returned when a bounded reconnection policy
// gave up. This is the only condition fatal to a channel.
var ErrConnectAttemptsExhausted = errors.New("connect attempts exhausted")

// ErrTokenNotFound is returned when a token store holds no persisted token.
var ErrTokenNotFound = errors.New("token not found")

// ErrQueueClosed is returned by queue operations after the queue has been
// closed and drained.
var ErrQueueClosed = errors.New("queue closed")

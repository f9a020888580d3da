// Package domain holds the shared types of the communication substrate:
// messages, envelopes, dialogue labels, protocol specifications and the
// sentinel errors of the error taxonomy. It has no dependencies on the
// engine or the transport and is imported by both.
package domain

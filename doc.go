// Package parley is a communication substrate for autonomous agents. It
// joins two layers behind one facade:
//
// The dialogue engine (pkg/dialogue) gives every conversation a stable
// identity, enforces the protocol's legal message sequences and tracks how
// dialogues end. Protocols are declared as data (pkg/domain.ProtocolSpec);
// two ship with the module, a FIPA-style negotiation and the directory
// search protocol.
//
// The channel layer (pkg/channel) keeps an auto-reconnecting connection to
// an external directory service, executes requests asynchronously and
// delivers replies through a bounded inbound queue.
//
// parley.Node wires both together for the common case: register services,
// search for peers, receive results.
package parley

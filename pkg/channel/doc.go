// Package channel connects an agent to a remote directory service and hides
// the connection's lifecycle behind four operations: Connect, Send, Receive
// and Disconnect.
//
// Requests travel outward as envelopes; each one is validated against the
// search protocol, recorded in a dialogue and executed asynchronously, either
// on the worker pool or, for searches, through a rate-limited queue that
// issues one request at a time. Results and protocol-level errors come back
// as reply envelopes on a bounded inbound queue.
//
// While connected, a watchdog probes the endpoint and transparently
// re-establishes a lost connection, reusing a persisted page address when
// the directory still honours it.
package channel

// Package ports defines the interfaces the substrate consumes: the external
// directory endpoint, the persisted-token store and the clock abstraction.
// Adapters live under pkg/adapters.
package ports

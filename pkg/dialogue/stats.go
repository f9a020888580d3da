package dialogue

import (
	"maps"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Stats aggregates terminal outcomes, partitioned by whether the dialogue
// was initiated by the local endpoint or by the counterparty.
type Stats struct {
	mu             sync.Mutex
	selfInitiated  map[domain.EndState]int
	otherInitiated map[domain.EndState]int
}

// NewStats creates counters for the given end states.
func NewStats(endStates []domain.EndState) *Stats {
	s := &Stats{
		selfInitiated:  make(map[domain.EndState]int, len(endStates)),
		otherInitiated: make(map[domain.EndState]int, len(endStates)),
	}
	for _, e := range endStates {
		s.selfInitiated[e] = 0
		s.otherInitiated[e] = 0
	}
	return s
}

// Add counts one terminal outcome.
func (s *Stats) Add(end domain.EndState, selfInitiated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if selfInitiated {
		s.selfInitiated[end]++
	} else {
		s.otherInitiated[end]++
	}
}

// SelfInitiated returns a copy of the self-initiated outcome counts.
func (s *Stats) SelfInitiated() map[domain.EndState]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.selfInitiated)
}

// OtherInitiated returns a copy of the other-initiated outcome counts.
func (s *Stats) OtherInitiated() map[domain.EndState]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.otherInitiated)
}

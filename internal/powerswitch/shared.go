package powerswitch

import "sync"

// Shared owns one Switch and serialises access to it.
//
// The lock is held only for the duration of a single Process or Snapshot
// call. Callers never obtain the underlying Switch, so no caller can hold
// it across network I/O.
type Shared struct {
	mu sync.Mutex
	sw *Switch
}

// NewShared wraps sw. sw must not be used directly afterwards.
func NewShared(sw *Switch) *Shared {
	return &Shared{sw: sw}
}

// Process runs cmd against the switch under the lock.
//
// Returns the response and whether the on/off state changed.
func (s *Shared) Process(cmd Command) (Response, bool) {
	s.mu.Lock()
	before := s.sw.state
	resp := s.sw.Process(cmd)
	changed := s.sw.state != before
	s.mu.Unlock()
	return resp, changed
}

// Snapshot returns a copy of the switch state.
func (s *Shared) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sw.Snapshot()
}

// String renders the status line of the current state.
func (s *Shared) String() string {
	return s.Snapshot().String()
}

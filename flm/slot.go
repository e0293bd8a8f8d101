package flm

import "sync"

// Slot grants ownership of the single runtime process the application may run.
type Slot struct {
	mu    sync.Mutex
	owner *Process
}

// Acquire makes p the owner, failing with ErrProcessActive if another process holds the slot.
func (s *Slot) Acquire(p *Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != nil {
		return ErrProcessActive
	}
	s.owner = p
	return nil
}

// Release frees the slot if p still owns it.
func (s *Slot) Release(p *Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == p {
		s.owner = nil
	}
}

// Current returns the owning process, or nil.
func (s *Slot) Current() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

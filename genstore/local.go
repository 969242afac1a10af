package genstore

import (
	"context"
	"sync"
)

// orderedSet keeps first-insertion order; removals are rare (whole generations).
type orderedSet struct {
	order []string
	index map[string]int
}

func newOrderedSet() *orderedSet { return &orderedSet{index: make(map[string]int)} }

func (s *orderedSet) add(v string) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = len(s.order)
	s.order = append(s.order, v)
	return true
}

func (s *orderedSet) remove(v string) {
	i, ok := s.index[v]
	if !ok {
		return
	}
	s.order = append(s.order[:i], s.order[i+1:]...)
	delete(s.index, v)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
}

func (s *orderedSet) values() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Local keeps generation metadata in-process (default).
type Local struct {
	mu      sync.RWMutex
	gens    *orderedSet
	members map[string]*orderedSet
	active  string
}

var _ GenStore = (*Local)(nil)

func NewLocal() *Local {
	return &Local{
		gens:    newOrderedSet(),
		members: make(map[string]*orderedSet),
	}
}

func (s *Local) Add(_ context.Context, gen string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gens.add(gen) {
		return false, nil
	}
	s.members[gen] = newOrderedSet()
	return true, nil
}

func (s *Local) Has(_ context.Context, gen string) (bool, error) {
	s.mu.RLock()
	_, ok := s.gens.index[gen]
	s.mu.RUnlock()
	return ok, nil
}

func (s *Local) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens.values(), nil
}

func (s *Local) Remove(_ context.Context, gen string) error {
	s.mu.Lock()
	s.gens.remove(gen)
	delete(s.members, gen)
	s.mu.Unlock()
	return nil
}

// Track registers gen implicitly, mirroring the redis layout where a member
// set can exist before the name is listed.
func (s *Local) Track(_ context.Context, gen, identity string) error {
	s.mu.Lock()
	m, ok := s.members[gen]
	if !ok {
		s.gens.add(gen)
		m = newOrderedSet()
		s.members[gen] = m
	}
	m.add(identity)
	s.mu.Unlock()
	return nil
}

func (s *Local) Untrack(_ context.Context, gen, identity string) error {
	s.mu.Lock()
	if m, ok := s.members[gen]; ok {
		m.remove(identity)
	}
	s.mu.Unlock()
	return nil
}

func (s *Local) Members(_ context.Context, gen string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[gen]
	if !ok {
		return nil, nil
	}
	return m.values(), nil
}

func (s *Local) Active(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, nil
}

func (s *Local) SetActive(_ context.Context, gen string) error {
	s.mu.Lock()
	s.active = gen
	s.mu.Unlock()
	return nil
}

func (s *Local) Close(_ context.Context) error { return nil }

package storage

import (
	"context"
	"slices"
	"sync"
)

const memoryAuditMax = 256

type memoryStore struct {
	mu     sync.RWMutex
	closed bool
	order  []string
	index  map[string]struct{}
	audit  []AuditEntry
}

// NewMemory returns a process-local store. Also used as the fallback when
// storage is disabled.
func NewMemory() Store {
	return &memoryStore{index: map[string]struct{}{}}
}

func (s *memoryStore) AddSubscriber(_ context.Context, id string) (bool, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrDisabled
	}
	if _, ok := s.index[id]; ok {
		return false, nil
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true, nil
}

func (s *memoryStore) RemoveSubscriber(_ context.Context, id string) (bool, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrDisabled
	}
	if _, ok := s.index[id]; !ok {
		return false, nil
	}
	delete(s.index, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true, nil
}

func (s *memoryStore) ListSubscribers(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrDisabled
	}
	return slices.Clone(s.order), nil
}

func (s *memoryStore) CountSubscribers(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrDisabled
	}
	return len(s.order), nil
}

func (s *memoryStore) HasSubscriber(_ context.Context, id string) (bool, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrDisabled
	}
	_, ok := s.index[id]
	return ok, nil
}

func (s *memoryStore) AppendAudit(_ context.Context, e AuditEntry) error {
	stampAudit(&e)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	s.audit = append(s.audit, e)
	if n := len(s.audit); n > memoryAuditMax {
		s.audit = slices.Clone(s.audit[n-memoryAuditMax:])
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

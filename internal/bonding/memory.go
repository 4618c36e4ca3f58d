package bonding

import (
	"context"
	"sync"
)

// MemoryStore is an in-process bond store used in tests and on platforms
// without BlueZ.
type MemoryStore struct {
	mu    sync.Mutex
	bonds map[string]struct{}

	// ClearErr, when set, is returned by Clear. Lets tests exercise the
	// fatal startup path.
	ClearErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bonds: make(map[string]struct{})}
}

// Add records a bond, as pairing would.
func (s *MemoryStore) Add(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bonds[addr] = struct{}{}
}

// Has reports whether a bond exists for addr.
func (s *MemoryStore) Has(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bonds[addr]
	return ok
}

// Count returns the number of stored bonds.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bonds)
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ClearErr != nil {
		return s.ClearErr
	}
	s.bonds = make(map[string]struct{})
	return nil
}

func (s *MemoryStore) Forget(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bonds, addr)
	return nil
}

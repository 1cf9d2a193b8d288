package session

import "sync"

// MemoryStore keeps the credential in process memory. It does not survive a
// restart and is mostly useful in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	cred Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get() (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred, !m.cred.IsZero()
}

func (m *MemoryStore) SetAccess(token string) error {
	m.mu.Lock()
	m.cred.AccessToken = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SetRefresh(token string) error {
	m.mu.Lock()
	m.cred.RefreshToken = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	m.cred = Credential{}
	m.mu.Unlock()
	return nil
}

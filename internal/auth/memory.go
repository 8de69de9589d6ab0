package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ CredentialStore = (*MemoryStore)(nil)

// MemoryStore is an in-process CredentialStore for tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	creds map[string]*Credential
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credential)}
}

// Put inserts or replaces a credential.
func (m *MemoryStore) Put(cred Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred.Username = strings.TrimSpace(cred.Username)
	m.creds[cred.Username] = &cred
}

func (m *MemoryStore) Find(ctx context.Context, username string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[strings.TrimSpace(username)]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return *cred, nil
}

func (m *MemoryStore) RegisterFailure(ctx context.Context, username string, now time.Time, policy LockoutPolicy) (FailureState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[strings.TrimSpace(username)]
	if !ok {
		return FailureState{}, ErrNotFound
	}

	attempts := cred.FailedAttempts
	if cred.LastFailedAt == nil || now.Sub(*cred.LastFailedAt) > policy.ResetAfter {
		attempts = 0
	}
	attempts++
	cred.FailedAttempts = attempts
	failedAt := now
	cred.LastFailedAt = &failedAt
	if attempts >= policy.MaxAttempts {
		lockedUntil := now.Add(policy.LockFor)
		cred.LockedUntil = &lockedUntil
	}
	cred.UpdatedAt = now
	return FailureState{FailedAttempts: cred.FailedAttempts, LockedUntil: cred.LockedUntil}, nil
}

func (m *MemoryStore) ResetFailures(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[strings.TrimSpace(username)]
	if !ok {
		return ErrNotFound
	}
	cred.FailedAttempts = 0
	cred.LastFailedAt = nil
	cred.LockedUntil = nil
	return nil
}

func (m *MemoryStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[strings.TrimSpace(username)]
	if !ok {
		return ErrNotFound
	}
	cred.PasswordHash = passwordHash
	return nil
}

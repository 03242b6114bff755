// Package sessions tracks client login sessions. Grid sessions are the
// sessionID/secureSessionID pairs handed over by the region server at login;
// web sessions are opaque tokens issued for the web interface.
package sessions

import (
	"sync"

	"github.com/google/uuid"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
)

type gridSession struct {
	sessionID       string
	secureSessionID string
}

// Registry is an in-memory session table. Sessions do not survive a restart;
// clients re-login when a session check fails.
type Registry struct {
	mu   sync.RWMutex
	grid map[string]gridSession
	web  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		grid: make(map[string]gridSession),
		web:  make(map[string]string),
	}
}

// Register records the grid session for an account, replacing any previous
// session for the same account.
func (r *Registry) Register(accountID, sessionID, secureSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grid[accountID] = gridSession{sessionID: sessionID, secureSessionID: secureSessionID}
}

// Verify checks that the presented session pair matches the registered one.
func (r *Registry) Verify(accountID, sessionID, secureSessionID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.grid[accountID]
	if !ok || s.sessionID != sessionID || s.secureSessionID != secureSessionID {
		return money.ErrAuthFailure
	}
	return nil
}

// Remove drops the grid session for an account. Removing an unknown account
// is a no-op.
func (r *Registry) Remove(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grid, accountID)
}

// RegisterWeb issues a fresh web session token for an account.
func (r *Registry) RegisterWeb(accountID string) string {
	token := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.web[accountID] = token
	return token
}

// VerifyWeb checks a web session token.
func (r *Registry) VerifyWeb(accountID, token string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.web[accountID]
	if !ok || t != token {
		return money.ErrAuthFailure
	}
	return nil
}

// RemoveWeb drops the web session for an account.
func (r *Registry) RemoveWeb(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.web, accountID)
}

// Count returns the number of active grid sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.grid)
}

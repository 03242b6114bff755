// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
	"github.com/virtualgrid/moneyserver/internal/app/storage"
)

// Store keeps balances, profile rows and the transaction log in maps guarded
// by a single mutex.
type Store struct {
	mu           sync.RWMutex
	accounts     map[string]money.Account
	userInfo     map[string]money.UserInfo
	transactions map[string]money.Transaction
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:     make(map[string]money.Account),
		userInfo:     make(map[string]money.UserInfo),
		transactions: make(map[string]money.Transaction),
	}
}

// AccountStore implementation ------------------------------------------------

func (s *Store) GetBalance(_ context.Context, accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return 0, money.ErrNotFound
	}
	return acct.Balance, nil
}

func (s *Store) CreateAccount(_ context.Context, accountID string, initialBalance int64, status int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[accountID]; exists {
		return money.ErrConflict
	}
	s.accounts[accountID] = money.Account{ID: accountID, Balance: initialBalance, Status: status}
	return nil
}

func (s *Store) AdjustBalance(_ context.Context, accountID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return money.ErrNotFound
	}
	acct.Balance += delta
	s.accounts[accountID] = acct
	return nil
}

// UserInfoStore implementation -----------------------------------------------

func (s *Store) UpsertUserInfo(_ context.Context, info money.UserInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userInfo[info.AccountID] = info
	return nil
}

func (s *Store) GetUserInfo(_ context.Context, accountID string) (money.UserInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.userInfo[accountID]
	if !ok {
		return money.UserInfo{}, money.ErrNotFound
	}
	return info, nil
}

// TransactionLog implementation ----------------------------------------------

func (s *Store) Append(_ context.Context, tx money.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return money.ErrConflict
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) UpdateStatus(_ context.Context, txID string, from, to money.Status, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateStatusLocked(txID, from, to, description)
}

func (s *Store) updateStatusLocked(txID string, from, to money.Status, description string) error {
	tx, ok := s.transactions[txID]
	if !ok {
		return money.ErrNotFound
	}
	if tx.Status == to {
		return nil
	}
	if tx.Status != from {
		return money.ErrTerminalStatus
	}
	tx.Status = to
	if description != "" {
		tx.Description = description
	}
	s.transactions[txID] = tx
	return nil
}

func (s *Store) Get(_ context.Context, txID string) (money.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return money.Transaction{}, money.ErrNotFound
	}
	return tx, nil
}

func (s *Store) ListByAccount(_ context.Context, accountID string, start, end int64, offset, limit int) ([]money.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLocked(accountID, start, end)
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Time == matched[j].Time {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Time < matched[j].Time
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) CountByAccount(_ context.Context, accountID string, start, end int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.matchLocked(accountID, start, end)), nil
}

func (s *Store) matchLocked(accountID string, start, end int64) []money.Transaction {
	var matched []money.Transaction
	for _, tx := range s.transactions {
		if tx.Sender != accountID && tx.Receiver != accountID {
			continue
		}
		if tx.Time < start {
			continue
		}
		if end > 0 && tx.Time > end {
			continue
		}
		matched = append(matched, tx)
	}
	return matched
}

func (s *Store) ExpirePending(_ context.Context, deadline int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int64
	for id, tx := range s.transactions {
		if tx.Status == money.StatusPending && tx.Time <= deadline {
			tx.Status = money.StatusFailed
			tx.Description = "expired"
			s.transactions[id] = tx
			expired++
		}
	}
	return expired, nil
}

// SettlementStore implementation ---------------------------------------------

func (s *Store) DebitPending(_ context.Context, txID, accountID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return money.ErrNotFound
	}
	if tx.Status != money.StatusPending {
		return money.ErrTerminalStatus
	}

	acct, ok := s.accounts[accountID]
	if !ok {
		return money.ErrNotFound
	}
	if acct.Balance < amount {
		return money.ErrInsufficientFunds
	}
	acct.Balance -= amount
	s.accounts[accountID] = acct
	return nil
}

func (s *Store) CreditSuccess(_ context.Context, txID, accountID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return money.ErrNotFound
	}
	// Strict compare-and-set: a replayed credit against a settled
	// transaction must not pay twice.
	if tx.Status != money.StatusPending {
		return money.ErrTerminalStatus
	}
	acct, ok := s.accounts[accountID]
	if !ok {
		return money.ErrNotFound
	}
	tx.Status = money.StatusSuccess
	s.transactions[txID] = tx
	acct.Balance += amount
	s.accounts[accountID] = acct
	return nil
}

// Package storage declares the persistence interfaces of the money server.
// Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
)

// AccountStore persists per-account balances.
type AccountStore interface {
	// GetBalance returns money.ErrNotFound when the account has no row.
	GetBalance(ctx context.Context, accountID string) (int64, error)

	// CreateAccount returns money.ErrConflict when the account already exists.
	CreateAccount(ctx context.Context, accountID string, initialBalance int64, status int) error

	// AdjustBalance applies delta atomically with respect to concurrent
	// adjustments on the same account. Returns money.ErrNotFound when the
	// account has no row.
	AdjustBalance(ctx context.Context, accountID string, delta int64) error
}

// UserInfoStore persists the per-account profile cache used to address
// notifications.
type UserInfoStore interface {
	UpsertUserInfo(ctx context.Context, info money.UserInfo) error
	GetUserInfo(ctx context.Context, accountID string) (money.UserInfo, error)
}

// TransactionLog persists transaction records and drives their status state
// machine. All status transitions are compare-and-set on the current status so
// a concurrent sweep or settlement cannot resurrect a terminal record.
type TransactionLog interface {
	// Append returns money.ErrConflict when the transaction id already exists.
	Append(ctx context.Context, tx money.Transaction) error

	// UpdateStatus transitions from -> to. Returns money.ErrTerminalStatus when
	// the row exists but its status is not `from`, money.ErrNotFound when there
	// is no row. Setting the status a row already has is a no-op.
	UpdateStatus(ctx context.Context, txID string, from, to money.Status, description string) error

	Get(ctx context.Context, txID string) (money.Transaction, error)

	// ListByAccount returns transactions where the account is sender or
	// receiver, time in [start, end] (end==0 means no upper bound), ordered by
	// ascending time, skipping offset rows and returning at most limit.
	ListByAccount(ctx context.Context, accountID string, start, end int64, offset, limit int) ([]money.Transaction, error)

	CountByAccount(ctx context.Context, accountID string, start, end int64) (int, error)

	// ExpirePending marks every Pending transaction with time <= deadline as
	// Failed with description "expired" and reports how many rows changed.
	ExpirePending(ctx context.Context, deadline int64) (int64, error)
}

// SettlementStore couples a balance adjustment with the matching transaction
// status transition in one atomic step, mirroring the two legs of a transfer.
type SettlementStore interface {
	// DebitPending subtracts amount from the account while the transaction
	// stays Pending. The debit is guarded by balance >= amount inside the same
	// statement; money.ErrInsufficientFunds when the guard fails.
	DebitPending(ctx context.Context, txID, accountID string, amount int64) error

	// CreditSuccess adds amount to the account and moves the transaction
	// Pending -> Success in the same step.
	CreditSuccess(ctx context.Context, txID, accountID string, amount int64) error
}

// Store is the full persistence surface the application wires together.
type Store interface {
	AccountStore
	UserInfoStore
	TransactionLog
	SettlementStore
}

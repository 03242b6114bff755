// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
	"github.com/virtualgrid/moneyserver/internal/app/storage"
)

// Store implements storage.Store on a *sql.DB. All balance mutations are
// single guarded UPDATE statements; settlement legs couple the balance change
// and the status transition in one database transaction.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// --- AccountStore -----------------------------------------------------------

func (s *Store) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM balances WHERE account = $1
	`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, money.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (s *Store) CreateAccount(ctx context.Context, accountID string, initialBalance int64, status int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balances (account, balance, status)
		VALUES ($1, $2, $3)
	`, accountID, initialBalance, status)
	if isUniqueViolation(err) {
		return money.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *Store) AdjustBalance(ctx context.Context, accountID string, delta int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE balances SET balance = balance + $2 WHERE account = $1
	`, accountID, delta)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return money.ErrNotFound
	}
	return nil
}

// --- UserInfoStore ----------------------------------------------------------

func (s *Store) UpsertUserInfo(ctx context.Context, info money.UserInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO userinfo (account, sim_address, avatar_name, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account) DO UPDATE
		SET sim_address = EXCLUDED.sim_address,
		    avatar_name = EXCLUDED.avatar_name,
		    password_hash = EXCLUDED.password_hash
	`, info.AccountID, info.SimAddress, info.AvatarName, info.PasswordHash)
	if err != nil {
		return fmt.Errorf("upsert userinfo: %w", err)
	}
	return nil
}

func (s *Store) GetUserInfo(ctx context.Context, accountID string) (money.UserInfo, error) {
	var info money.UserInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT account, sim_address, avatar_name, password_hash
		FROM userinfo WHERE account = $1
	`, accountID).Scan(&info.AccountID, &info.SimAddress, &info.AvatarName, &info.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return money.UserInfo{}, money.ErrNotFound
	}
	if err != nil {
		return money.UserInfo{}, fmt.Errorf("get userinfo: %w", err)
	}
	return info, nil
}

// --- TransactionLog ---------------------------------------------------------

func (s *Store) Append(ctx context.Context, tx money.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(uuid, sender, receiver, amount, object_uuid, region_handle,
			 type, time, secure, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, tx.ID, tx.Sender, tx.Receiver, tx.Amount, tx.ObjectID, tx.RegionHandle,
		int(tx.Type), tx.Time, tx.SecureCode, int(tx.Status), tx.Description)
	if isUniqueViolation(err) {
		return money.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, txID string, from, to money.Status, description string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3, description = CASE WHEN $4 = '' THEN description ELSE $4 END
		WHERE uuid = $1 AND status = $2
	`, txID, int(from), int(to), description)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}

	var current int
	err = s.db.QueryRowContext(ctx, `
		SELECT status FROM transactions WHERE uuid = $1
	`, txID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return money.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if money.Status(current) == to {
		return nil
	}
	return money.ErrTerminalStatus
}

const transactionColumns = `
	uuid, sender, receiver, amount, object_uuid, region_handle,
	type, time, secure, status, description`

func scanTransaction(row interface{ Scan(...any) error }) (money.Transaction, error) {
	var (
		tx             money.Transaction
		txType, status int
	)
	err := row.Scan(&tx.ID, &tx.Sender, &tx.Receiver, &tx.Amount, &tx.ObjectID,
		&tx.RegionHandle, &txType, &tx.Time, &tx.SecureCode, &status, &tx.Description)
	if err != nil {
		return money.Transaction{}, err
	}
	tx.Type = money.TransactionType(txType)
	tx.Status = money.Status(status)
	return tx, nil
}

func (s *Store) Get(ctx context.Context, txID string) (money.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE uuid = $1
	`, txID)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return money.Transaction{}, money.ErrNotFound
	}
	if err != nil {
		return money.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) ListByAccount(ctx context.Context, accountID string, start, end int64, offset, limit int) ([]money.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE (sender = $1 OR receiver = $1)
		  AND time >= $2 AND ($3 = 0 OR time <= $3)
		ORDER BY time, uuid
		OFFSET $4 LIMIT $5
	`, accountID, start, end, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var result []money.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (s *Store) CountByAccount(ctx context.Context, accountID string, start, end int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE (sender = $1 OR receiver = $1)
		  AND time >= $2 AND ($3 = 0 OR time <= $3)
	`, accountID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

func (s *Store) ExpirePending(ctx context.Context, deadline int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, description = 'expired'
		WHERE status = $2 AND time <= $3
	`, int(money.StatusFailed), int(money.StatusPending), deadline)
	if err != nil {
		return 0, fmt.Errorf("expire pending: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// --- SettlementStore --------------------------------------------------------

func (s *Store) DebitPending(ctx context.Context, txID, accountID string, amount int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status int
		err := tx.QueryRowContext(ctx, `
			SELECT status FROM transactions WHERE uuid = $1 FOR UPDATE
		`, txID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return money.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("debit: %w", err)
		}
		if money.Status(status) != money.StatusPending {
			return money.ErrTerminalStatus
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE balances SET balance = balance - $2
			WHERE account = $1 AND balance >= $2
		`, accountID, amount)
		if err != nil {
			return fmt.Errorf("debit: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM balances WHERE account = $1)
			`, accountID).Scan(&exists); err != nil {
				return fmt.Errorf("debit: %w", err)
			}
			if !exists {
				return money.ErrNotFound
			}
			return money.ErrInsufficientFunds
		}
		return nil
	})
}

func (s *Store) CreditSuccess(ctx context.Context, txID, accountID string, amount int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE transactions SET status = $2 WHERE uuid = $1 AND status = $3
		`, txID, int(money.StatusSuccess), int(money.StatusPending))
		if err != nil {
			return fmt.Errorf("credit: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM transactions WHERE uuid = $1)
			`, txID).Scan(&exists); err != nil {
				return fmt.Errorf("credit: %w", err)
			}
			if !exists {
				return money.ErrNotFound
			}
			return money.ErrTerminalStatus
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE balances SET balance = balance + $2 WHERE account = $1
		`, accountID, amount)
		if err != nil {
			return fmt.Errorf("credit: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return money.ErrNotFound
		}
		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

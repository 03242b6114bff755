package ledger

import (
	"context"
	"crypto/subtle"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
)

// WebLogin authenticates against the password hash recorded at client login
// and issues a web session token.
func (s *Service) WebLogin(ctx context.Context, accountID, passwordHash string) (string, error) {
	info, err := s.store.GetUserInfo(ctx, accountID)
	if err != nil {
		return "", money.ErrAuthFailure
	}
	if info.PasswordHash == "" ||
		subtle.ConstantTimeCompare([]byte(info.PasswordHash), []byte(passwordHash)) != 1 {
		return "", money.ErrAuthFailure
	}
	token := s.sessions.RegisterWeb(accountID)
	s.log.WithField("account", accountID).Info("web login")
	return token, nil
}

// WebLogout drops the web session.
func (s *Service) WebLogout(ctx context.Context, accountID, token string) error {
	if err := s.sessions.VerifyWeb(accountID, token); err != nil {
		return err
	}
	s.sessions.RemoveWeb(accountID)
	return nil
}

// WebBalance returns the balance for a web session.
func (s *Service) WebBalance(ctx context.Context, accountID, token string) (int64, error) {
	if err := s.sessions.VerifyWeb(accountID, token); err != nil {
		return 0, err
	}
	return s.store.GetBalance(ctx, accountID)
}

// WebTransactions lists the account's transaction history within the time
// range, paged by offset and limit. A zero end time means no upper bound.
func (s *Service) WebTransactions(ctx context.Context, accountID, token string, start, end int64, offset, limit int) ([]money.Transaction, error) {
	if err := s.sessions.VerifyWeb(accountID, token); err != nil {
		return nil, err
	}
	return s.store.ListByAccount(ctx, accountID, start, end, offset, limit)
}

// WebTransactionCount returns how many transactions fall in the time range.
func (s *Service) WebTransactionCount(ctx context.Context, accountID, token string, start, end int64) (int, error) {
	if err := s.sessions.VerifyWeb(accountID, token); err != nil {
		return 0, err
	}
	return s.store.CountByAccount(ctx, accountID, start, end)
}

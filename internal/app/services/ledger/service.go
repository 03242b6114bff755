// Package ledger implements the money service business logic: login and
// session-gated balance queries, the two-leg transfer state machine with
// delivery confirmation and rollback, privileged minting operations, and the
// pending-transaction expiry sweep.
package ledger

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
	"github.com/virtualgrid/moneyserver/internal/app/metrics"
	"github.com/virtualgrid/moneyserver/internal/app/services/sessions"
	"github.com/virtualgrid/moneyserver/internal/app/storage"
	"github.com/virtualgrid/moneyserver/internal/config"
	"github.com/virtualgrid/moneyserver/pkg/logger"
)

// Notifier delivers events to region servers.
type Notifier interface {
	UpdateBalance(ctx context.Context, simAddress, accountID string, balance int64, message string)
	ConfirmDelivery(ctx context.Context, simAddress string, tx money.Transaction) error
}

// Service coordinates storage, sessions and region notifications.
type Service struct {
	store    storage.Store
	sessions *sessions.Registry
	notifier Notifier
	metrics  *metrics.Registry
	cfg      config.LedgerConfig
	log      *logger.Logger

	// now is replaceable in tests.
	now   func() int64
	newID func() string
}

func NewService(store storage.Store, reg *sessions.Registry, notifier Notifier,
	m *metrics.Registry, cfg config.LedgerConfig, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		sessions: reg,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		log:      log,
		now:      func() int64 { return time.Now().Unix() },
		newID:    uuid.NewString,
	}
}

// SystemAccount returns the grid's system account identifier, the source of
// minted money and the sink for charges.
func (s *Service) SystemAccount() string {
	return money.SystemAccountID(s.cfg.OriginServer)
}

// LoginRequest carries the session handover from the region server.
type LoginRequest struct {
	AvatarID        string
	SessionID       string
	SecureSessionID string
	SimAddress      string
	AvatarName      string
	PasswordHash    string
}

// Login registers the client session and returns the account balance. A
// first-time avatar gets an account seeded with the configured default
// balance.
func (s *Service) Login(ctx context.Context, req LoginRequest) (int64, error) {
	accountID := money.JoinAccountID(req.AvatarID, s.cfg.OriginServer)

	balance, err := s.store.GetBalance(ctx, accountID)
	if errors.Is(err, money.ErrNotFound) {
		if err := s.store.CreateAccount(ctx, accountID, s.cfg.DefaultBalance, 0); err != nil && !errors.Is(err, money.ErrConflict) {
			return 0, fmt.Errorf("create account: %w", err)
		}
		balance, err = s.store.GetBalance(ctx, accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("login: %w", err)
	}

	if err := s.store.UpsertUserInfo(ctx, money.UserInfo{
		AccountID:    accountID,
		SimAddress:   req.SimAddress,
		AvatarName:   req.AvatarName,
		PasswordHash: req.PasswordHash,
	}); err != nil {
		return 0, fmt.Errorf("login: %w", err)
	}

	s.sessions.Register(accountID, req.SessionID, req.SecureSessionID)
	s.log.WithFields(map[string]any{
		"account": accountID,
		"avatar":  req.AvatarName,
	}).Info("client logged in")
	return balance, nil
}

// Logout removes the client session. The session pair must still match.
func (s *Service) Logout(ctx context.Context, accountID, sessionID, secureSessionID string) error {
	if err := s.sessions.Verify(accountID, sessionID, secureSessionID); err != nil {
		return err
	}
	s.sessions.Remove(accountID)
	s.log.WithField("account", accountID).Info("client logged out")
	return nil
}

// Balance returns the account balance after verifying the session. An
// account that lost its row while the session stayed alive is re-seeded at
// the default balance rather than erroring the viewer out.
func (s *Service) Balance(ctx context.Context, accountID, sessionID, secureSessionID string) (int64, error) {
	if err := s.sessions.Verify(accountID, sessionID, secureSessionID); err != nil {
		return 0, err
	}
	balance, err := s.store.GetBalance(ctx, accountID)
	if errors.Is(err, money.ErrNotFound) {
		if err := s.store.CreateAccount(ctx, accountID, s.cfg.DefaultBalance, 0); err != nil && !errors.Is(err, money.ErrConflict) {
			return 0, err
		}
		return s.store.GetBalance(ctx, accountID)
	}
	return balance, err
}

// GetTransaction returns a transaction the caller is a party to.
func (s *Service) GetTransaction(ctx context.Context, accountID, sessionID, secureSessionID, txID string) (money.Transaction, error) {
	if err := s.sessions.Verify(accountID, sessionID, secureSessionID); err != nil {
		return money.Transaction{}, err
	}
	tx, err := s.store.Get(ctx, txID)
	if err != nil {
		return money.Transaction{}, err
	}
	if tx.Sender != accountID && tx.Receiver != accountID {
		return money.Transaction{}, money.ErrForbidden
	}
	return tx, nil
}

// Cancel fails a transaction that is still pending. Only the sender may
// cancel, the caller must present the transaction's secure code, and a
// settled transaction cannot be canceled.
func (s *Service) Cancel(ctx context.Context, accountID, sessionID, secureSessionID, txID, secureCode string) error {
	if err := s.sessions.Verify(accountID, sessionID, secureSessionID); err != nil {
		return err
	}
	tx, err := s.store.Get(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Sender != accountID {
		return money.ErrForbidden
	}
	if subtle.ConstantTimeCompare([]byte(tx.SecureCode), []byte(secureCode)) != 1 {
		s.log.WithFields(map[string]any{
			"transaction": txID,
			"account":     accountID,
		}).Warn("cancel with bad secure code")
		return money.ErrAuthFailure
	}
	if err := s.store.UpdateStatus(ctx, txID, money.StatusPending, money.StatusFailed, "user canceled"); err != nil {
		return err
	}
	s.metrics.Transactions.WithLabelValues(tx.Type.String(), money.StatusFailed.String()).Inc()
	s.log.WithFields(map[string]any{
		"transaction": txID,
		"account":     accountID,
	}).Info("transaction canceled")
	return nil
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// scriptAccessCode derives the code an in-world script must present. It
// binds the shared key to both the caller's and the configured script host's
// addresses.
func scriptAccessCode(key, callerIP, scriptIP string) string {
	return md5hex(md5hex(key+"_"+callerIP) + "_" + scriptIP)
}

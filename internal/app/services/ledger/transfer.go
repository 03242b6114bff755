package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
)

// TransferRequest describes a money movement between two accounts.
type TransferRequest struct {
	Sender          string
	Receiver        string
	SessionID       string
	SecureSessionID string
	Amount          int64
	ObjectID        string
	RegionHandle    string
	Type            money.TransactionType
	Description     string
	// SecureCode is stored with the transaction and must be presented to
	// cancel it later. Generated when the caller supplies none.
	SecureCode string
}

// Transfer moves money from sender to receiver. The sender's session is
// verified; object purchases additionally require the region to confirm
// delivery before the transfer sticks.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if err := s.sessions.Verify(req.Sender, req.SessionID, req.SecureSessionID); err != nil {
		return "", err
	}
	return s.execute(ctx, req)
}

// ForceTransfer moves money without a client session. It serves region-side
// charges and is rejected unless the grid has opted in.
func (s *Service) ForceTransfer(ctx context.Context, req TransferRequest) (string, error) {
	if !s.cfg.EnableForceTransfer {
		return "", money.ErrForbidden
	}
	s.log.WithFields(map[string]any{
		"sender":   req.Sender,
		"receiver": req.Receiver,
		"amount":   req.Amount,
	}).Warn("force transfer requested")
	return s.execute(ctx, req)
}

// execute runs the transfer state machine. The transaction record is written
// first so a crash between the legs leaves a Pending row for the expiry
// sweep, never a lost or duplicated balance change.
func (s *Service) execute(ctx context.Context, req TransferRequest) (string, error) {
	if req.Amount < 0 {
		return "", money.ErrInvalidAmount
	}
	secure := req.SecureCode
	if secure == "" {
		secure = s.newID()
	}

	tx := money.Transaction{
		ID:           s.newID(),
		Sender:       req.Sender,
		Receiver:     req.Receiver,
		Amount:       req.Amount,
		ObjectID:     req.ObjectID,
		RegionHandle: req.RegionHandle,
		Type:         req.Type,
		Time:         s.now(),
		SecureCode:   secure,
		Status:       money.StatusPending,
		Description:  req.Description,
	}

	// A zero-amount transfer is recorded but moves nothing.
	if req.Amount == 0 {
		tx.Status = money.StatusSuccess
		if err := s.store.Append(ctx, tx); err != nil {
			return "", err
		}
		s.metrics.Transactions.WithLabelValues(tx.Type.String(), tx.Status.String()).Inc()
		return tx.ID, nil
	}

	if err := s.ensureAccount(ctx, req.Receiver); err != nil {
		return "", err
	}
	if err := s.store.Append(ctx, tx); err != nil {
		return "", err
	}
	start := time.Now()

	if err := s.store.DebitPending(ctx, tx.ID, req.Sender, req.Amount); err != nil {
		s.failPending(ctx, tx, "debit failed: "+reason(err))
		return tx.ID, err
	}
	if err := s.store.CreditSuccess(ctx, tx.ID, req.Receiver, req.Amount); err != nil {
		// The debit landed but the credit did not. Return the money and
		// fail the transaction.
		if adjErr := s.store.AdjustBalance(ctx, req.Sender, req.Amount); adjErr != nil {
			s.log.WithError(adjErr).WithField("transaction", tx.ID).
				Error("refund after credit failure did not apply, ledger inconsistent")
		}
		s.failPending(ctx, tx, "credit failed: "+reason(err))
		return tx.ID, err
	}
	s.metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	if req.Type == money.TypeObjectPurchase {
		if err := s.confirmDelivery(ctx, tx); err != nil {
			s.rollback(ctx, tx)
			return tx.ID, err
		}
	}

	s.metrics.Transactions.WithLabelValues(tx.Type.String(), money.StatusSuccess.String()).Inc()
	s.notifyParties(ctx, tx)
	return tx.ID, nil
}

// ensureAccount creates the receiver account at zero balance if it does not
// exist yet. Money can be sent to avatars that have never logged in.
func (s *Service) ensureAccount(ctx context.Context, accountID string) error {
	_, err := s.store.GetBalance(ctx, accountID)
	if errors.Is(err, money.ErrNotFound) {
		err = s.store.CreateAccount(ctx, accountID, 0, 0)
		if errors.Is(err, money.ErrConflict) {
			return nil
		}
	}
	return err
}

func (s *Service) failPending(ctx context.Context, tx money.Transaction, description string) {
	if err := s.store.UpdateStatus(ctx, tx.ID, money.StatusPending, money.StatusFailed, description); err != nil {
		s.log.WithError(err).WithField("transaction", tx.ID).Error("could not mark transaction failed")
	}
	s.metrics.Transactions.WithLabelValues(tx.Type.String(), money.StatusFailed.String()).Inc()
}

// confirmDelivery asks the sender's region to hand over the object.
func (s *Service) confirmDelivery(ctx context.Context, tx money.Transaction) error {
	info, err := s.store.GetUserInfo(ctx, tx.Sender)
	if err != nil {
		return fmt.Errorf("%w: no region for sender", money.ErrDeliveryFailed)
	}
	return s.notifier.ConfirmDelivery(ctx, info.SimAddress, tx)
}

// rollback reverses a settled transfer after a failed delivery. The
// compensating adjustments are unguarded so the reversal applies even if the
// receiver spent the money in the meantime.
func (s *Service) rollback(ctx context.Context, tx money.Transaction) {
	log := s.log.WithField("transaction", tx.ID)
	if err := s.store.AdjustBalance(ctx, tx.Receiver, -tx.Amount); err != nil {
		log.WithError(err).Error("rollback debit did not apply, ledger inconsistent")
	}
	if err := s.store.AdjustBalance(ctx, tx.Sender, tx.Amount); err != nil {
		log.WithError(err).Error("rollback credit did not apply, ledger inconsistent")
	}
	if err := s.store.UpdateStatus(ctx, tx.ID, money.StatusSuccess, money.StatusFailed, "rolled back: delivery failed"); err != nil {
		log.WithError(err).Error("could not mark rolled-back transaction failed")
	}
	s.metrics.Rollbacks.Inc()
	s.metrics.Transactions.WithLabelValues(tx.Type.String(), money.StatusFailed.String()).Inc()
	log.Warn("transfer rolled back after delivery failure")
	// Both parties see their restored balances with the rollback reason.
	s.notifyBalances(ctx, tx, "transfer rolled back: delivery failed")
}

// notifyParties pushes fresh balances to the regions hosting each party of a
// settled transfer.
func (s *Service) notifyParties(ctx context.Context, tx money.Transaction) {
	s.notifyBalances(ctx, tx, tx.Description)
}

// notifyBalances sends each party its current balance. Failures are logged
// by the notifier and do not affect the outcome. A self transfer notifies
// once, and upload charges do not notify the receiving system account.
func (s *Service) notifyBalances(ctx context.Context, tx money.Transaction, message string) {
	if info, err := s.store.GetUserInfo(ctx, tx.Sender); err == nil {
		if balance, err := s.store.GetBalance(ctx, tx.Sender); err == nil {
			s.notifier.UpdateBalance(ctx, info.SimAddress, tx.Sender, balance, message)
		}
	}
	if tx.Receiver == tx.Sender || tx.Type == money.TypeUploadCharge {
		return
	}
	if info, err := s.store.GetUserInfo(ctx, tx.Receiver); err == nil {
		if balance, err := s.store.GetBalance(ctx, tx.Receiver); err == nil {
			s.notifier.UpdateBalance(ctx, info.SimAddress, tx.Receiver, balance, message)
		}
	}
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

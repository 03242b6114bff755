package ledger

import (
	"context"
	"crypto/subtle"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
)

// AddBankerMoney credits freshly minted money to the banker avatar. The
// grid's configured banker is the only account allowed to buy money; an
// empty banker configuration disables the operation entirely.
func (s *Service) AddBankerMoney(ctx context.Context, avatarID string, amount int64) (string, error) {
	if s.cfg.BankerAvatar == "" || s.cfg.BankerAvatar != avatarID {
		s.log.WithField("avatar", avatarID).Warn("banker money request from non-banker")
		return "", money.ErrForbidden
	}
	if amount <= 0 {
		return "", money.ErrInvalidAmount
	}
	accountID := money.JoinAccountID(avatarID, s.cfg.OriginServer)
	return s.mint(ctx, accountID, amount, money.TypeBuyMoney, "banker money purchase")
}

// SendMoneyBalanceRequest is a script-initiated credit. CallerIP is the
// remote address the request arrived from, used to recompute the access code.
type SendMoneyBalanceRequest struct {
	AvatarID    string
	Amount      int64
	AccessCode  string
	CallerIP    string
	Description string
}

// SendMoneyBalance lets a trusted in-world script credit an avatar. The
// script proves possession of the shared key by presenting a code derived
// from the key and both endpoint addresses.
func (s *Service) SendMoneyBalance(ctx context.Context, req SendMoneyBalanceRequest) (string, error) {
	if !s.cfg.EnableScriptSendMoney {
		return "", money.ErrForbidden
	}
	want := scriptAccessCode(s.cfg.ScriptAccessKey, req.CallerIP, s.cfg.ScriptIPAddress)
	if subtle.ConstantTimeCompare([]byte(want), []byte(req.AccessCode)) != 1 {
		s.log.WithField("caller", req.CallerIP).Warn("script send money with bad access code")
		return "", money.ErrForbidden
	}
	if req.Amount <= 0 {
		return "", money.ErrInvalidAmount
	}
	accountID := money.JoinAccountID(req.AvatarID, s.cfg.OriginServer)
	desc := req.Description
	if desc == "" {
		desc = "script money grant"
	}
	return s.mint(ctx, accountID, req.Amount, money.TypeAddMoney, desc)
}

// mint credits an account from the system account. The system account is not
// debited; minted money enters circulation here.
func (s *Service) mint(ctx context.Context, accountID string, amount int64, txType money.TransactionType, description string) (string, error) {
	if err := s.ensureAccount(ctx, accountID); err != nil {
		return "", err
	}
	tx := money.Transaction{
		ID:          s.newID(),
		Sender:      s.SystemAccount(),
		Receiver:    accountID,
		Amount:      amount,
		Type:        txType,
		Time:        s.now(),
		SecureCode:  s.newID(),
		Status:      money.StatusPending,
		Description: description,
	}
	if err := s.store.Append(ctx, tx); err != nil {
		return "", err
	}
	if err := s.store.CreditSuccess(ctx, tx.ID, accountID, amount); err != nil {
		s.failPending(ctx, tx, "credit failed: "+reason(err))
		return tx.ID, err
	}
	s.metrics.Transactions.WithLabelValues(txType.String(), money.StatusSuccess.String()).Inc()
	s.notifyParties(ctx, tx)
	return tx.ID, nil
}

// PayChargeRequest debits an avatar for a grid service such as an asset
// upload. The charge sinks into the system account.
type PayChargeRequest struct {
	Sender          string
	SessionID       string
	SecureSessionID string
	Amount          int64
	ObjectID        string
	RegionHandle    string
	Type            money.TransactionType
	Description     string
}

// PayCharge moves money from the avatar to the system account.
func (s *Service) PayCharge(ctx context.Context, req PayChargeRequest) (string, error) {
	txType := req.Type
	if txType == money.TypeSystemGenerated {
		txType = money.TypePayCharge
	}
	return s.Transfer(ctx, TransferRequest{
		Sender:          req.Sender,
		Receiver:        s.SystemAccount(),
		SessionID:       req.SessionID,
		SecureSessionID: req.SecureSessionID,
		Amount:          req.Amount,
		ObjectID:        req.ObjectID,
		RegionHandle:    req.RegionHandle,
		Type:            txType,
		Description:     req.Description,
	})
}

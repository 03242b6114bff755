// Package money holds the core types of the grid currency ledger: accounts,
// their cached profile data, and the transaction records that move balances
// between them.
package money

// Account is one avatar's balance row. The ID is composed as
// "<avatarID>@<originServer>" so the same avatar on a different origin server
// is a distinct account.
type Account struct {
	ID      string `json:"id"`
	Balance int64  `json:"balance"`
	Status  int    `json:"status"`
}

// UserInfo is the denormalised profile cache refreshed on every login.
// SimAddress is the region server currently responsible for notifying this
// account.
type UserInfo struct {
	AccountID    string `json:"account_id"`
	SimAddress   string `json:"sim_address"`
	AvatarName   string `json:"avatar_name"`
	PasswordHash string `json:"-"`
}

// TransactionType enumerates the reason a transaction was created.
type TransactionType int

const (
	TypeSystemGenerated TransactionType = iota
	TypeGift
	TypeLandSale
	TypeObjectPays
	TypeObjectPurchase
	TypeUploadCharge
	TypePayCharge
	TypeAddMoney
	TypeBuyMoney
)

func (t TransactionType) String() string {
	switch t {
	case TypeSystemGenerated:
		return "system"
	case TypeGift:
		return "gift"
	case TypeLandSale:
		return "land_sale"
	case TypeObjectPays:
		return "object_pays"
	case TypeObjectPurchase:
		return "object_purchase"
	case TypeUploadCharge:
		return "upload_charge"
	case TypePayCharge:
		return "pay_charge"
	case TypeAddMoney:
		return "add_money"
	case TypeBuyMoney:
		return "buy_money"
	}
	return "unknown"
}

// Status is the persisted lifecycle state of a transaction. Success and Failed
// are terminal; a record never leaves a terminal state.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether a transaction in this status may still transition.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Transaction is the immutable record of one attempted money movement.
type Transaction struct {
	ID           string          `json:"id"`
	Sender       string          `json:"sender"`
	Receiver     string          `json:"receiver"`
	Amount       int64           `json:"amount"`
	ObjectID     string          `json:"object_id,omitempty"`
	RegionHandle string          `json:"region_handle,omitempty"`
	Type         TransactionType `json:"type"`
	Time         int64           `json:"time"`
	SecureCode   string          `json:"-"`
	Status       Status          `json:"status"`
	Description  string          `json:"description,omitempty"`
}

// SystemAccountID is the synthetic account used as sender for banker and
// scripted credits and as receiver for charges, scoped to an origin server
// like any other account.
func SystemAccountID(originServer string) string {
	return "00000000-0000-0000-0000-000000000000@" + originServer
}

// JoinAccountID composes the canonical account identifier from an avatar id
// and its origin server address.
func JoinAccountID(avatarID, originServer string) string {
	return avatarID + "@" + originServer
}

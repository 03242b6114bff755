// Package httpapi exposes the money service RPC surface. Every operation is
// a POST of a JSON body to /rpc/{Method}; domain failures are reported with
// HTTP 200 and success=false so region servers and viewers can parse a
// uniform envelope.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
	"github.com/virtualgrid/moneyserver/internal/app/services/ledger"
	"github.com/virtualgrid/moneyserver/internal/middleware"
	"github.com/virtualgrid/moneyserver/pkg/logger"
)

// sessionFailureMessage is deliberately generic. Callers must not learn
// whether the account, session or secure session was the mismatch.
const sessionFailureMessage = "Session check failure, please re-login"

type Handler struct {
	ledger *ledger.Service
	log    *logger.Logger
}

func NewHandler(svc *ledger.Service, log *logger.Logger) *Handler {
	return &Handler{ledger: svc, log: log}
}

// Register mounts every RPC endpoint on the router. instrument wraps each
// endpoint and may be nil.
func (h *Handler) Register(r *mux.Router, instrument func(endpoint string, next http.Handler) http.Handler) {
	endpoints := map[string]http.HandlerFunc{
		"ClientLogin":          h.clientLogin,
		"ClientLogout":         h.clientLogout,
		"GetBalance":           h.getBalance,
		"TransferMoney":        h.transferMoney,
		"ForceTransferMoney":   h.forceTransferMoney,
		"AddBankerMoney":       h.addBankerMoney,
		"SendMoneyBalance":     h.sendMoneyBalance,
		"PayMoneyCharge":       h.payMoneyCharge,
		"CancelTransfer":       h.cancelTransfer,
		"GetTransaction":       h.getTransaction,
		"WebLogin":             h.webLogin,
		"WebLogout":            h.webLogout,
		"WebGetBalance":        h.webGetBalance,
		"WebGetTransaction":    h.webGetTransaction,
		"WebGetTransactionNum": h.webGetTransactionNum,
	}
	for name, fn := range endpoints {
		var handler http.Handler = fn
		if instrument != nil {
			handler = instrument(name, handler)
		}
		r.Handle("/rpc/"+name, handler).Methods(http.MethodPost)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.WithError(err).Error("encode response failed")
	}
}

// writeError maps domain errors onto the success=false envelope. Anything
// not in the domain taxonomy is a server fault.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	msg := ""
	switch {
	case errors.Is(err, money.ErrAuthFailure):
		msg = sessionFailureMessage
	case errors.Is(err, money.ErrForbidden):
		msg = "operation not permitted"
	case errors.Is(err, money.ErrInsufficientFunds):
		msg = "insufficient funds"
	case errors.Is(err, money.ErrInvalidAmount):
		msg = "invalid amount"
	case errors.Is(err, money.ErrNotFound):
		msg = "not found"
	case errors.Is(err, money.ErrTerminalStatus):
		msg = "transaction already settled"
	case errors.Is(err, money.ErrDeliveryFailed):
		msg = "delivery failed, transfer reversed"
	default:
		h.log.WithError(err).Error("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, statusResponse{Success: false, Message: msg})
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type balanceResponse struct {
	Success bool  `json:"success"`
	Balance int64 `json:"balance"`
}

type transactionIDResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionID"`
}

// --- client endpoints -------------------------------------------------------

type clientLoginRequest struct {
	AvatarID        string `json:"avatarID"`
	SessionID       string `json:"sessionID"`
	SecureSessionID string `json:"secureSessionID"`
	SimAddress      string `json:"simAddress"`
	AvatarName      string `json:"avatarName"`
	PasswordHash    string `json:"passwordHash"`
}

func (h *Handler) clientLogin(w http.ResponseWriter, r *http.Request) {
	var req clientLoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	balance, err := h.ledger.Login(r.Context(), ledger.LoginRequest{
		AvatarID:        req.AvatarID,
		SessionID:       req.SessionID,
		SecureSessionID: req.SecureSessionID,
		SimAddress:      req.SimAddress,
		AvatarName:      req.AvatarName,
		PasswordHash:    req.PasswordHash,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, balanceResponse{Success: true, Balance: balance})
}

type sessionRequest struct {
	AccountID       string `json:"accountID"`
	SessionID       string `json:"sessionID"`
	SecureSessionID string `json:"secureSessionID"`
}

func (h *Handler) clientLogout(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ledger.Logout(r.Context(), req.AccountID, req.SessionID, req.SecureSessionID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, statusResponse{Success: true})
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	balance, err := h.ledger.Balance(r.Context(), req.AccountID, req.SessionID, req.SecureSessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, balanceResponse{Success: true, Balance: balance})
}

type transferRequest struct {
	SenderID        string `json:"senderID"`
	ReceiverID      string `json:"receiverID"`
	SessionID       string `json:"sessionID"`
	SecureSessionID string `json:"secureSessionID"`
	Amount          int64  `json:"amount"`
	ObjectID        string `json:"objectID"`
	RegionHandle    string `json:"regionHandle"`
	TransactionType int    `json:"transactionType"`
	Description     string `json:"description"`
	SecureCode      string `json:"secureCode"`
}

func (r transferRequest) toLedger() ledger.TransferRequest {
	return ledger.TransferRequest{
		Sender:          r.SenderID,
		Receiver:        r.ReceiverID,
		SessionID:       r.SessionID,
		SecureSessionID: r.SecureSessionID,
		Amount:          r.Amount,
		ObjectID:        r.ObjectID,
		RegionHandle:    r.RegionHandle,
		Type:            money.TransactionType(r.TransactionType),
		Description:     r.Description,
		SecureCode:      r.SecureCode,
	}
}

func (h *Handler) transferMoney(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	txID, err := h.ledger.Transfer(r.Context(), req.toLedger())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, transactionIDResponse{Success: true, TransactionID: txID})
}

func (h *Handler) forceTransferMoney(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	txID, err := h.ledger.ForceTransfer(r.Context(), req.toLedger())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, transactionIDResponse{Success: true, TransactionID: txID})
}

type bankerMoneyRequest struct {
	AvatarID string `json:"avatarID"`
	Amount   int64  `json:"amount"`
}

func (h *Handler) addBankerMoney(w http.ResponseWriter, r *http.Request) {
	var req bankerMoneyRequest
	if !h.decode(w, r, &req) {
		return
	}
	txID, err := h.ledger.AddBankerMoney(r.Context(), req.AvatarID, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, transactionIDResponse{Success: true, TransactionID: txID})
}

type sendMoneyRequest struct {
	AvatarID    string `json:"avatarID"`
	Amount      int64  `json:"amount"`
	AccessCode  string `json:"accessCode"`
	Description string `json:"description"`
}

func (h *Handler) sendMoneyBalance(w http.ResponseWriter, r *http.Request) {
	var req sendMoneyRequest
	if !h.decode(w, r, &req) {
		return
	}
	txID, err := h.ledger.SendMoneyBalance(r.Context(), ledger.SendMoneyBalanceRequest{
		AvatarID:    req.AvatarID,
		Amount:      req.Amount,
		AccessCode:  req.AccessCode,
		CallerIP:    middleware.CallerIP(r),
		Description: req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, transactionIDResponse{Success: true, TransactionID: txID})
}

type payChargeRequest struct {
	SenderID        string `json:"senderID"`
	SessionID       string `json:"sessionID"`
	SecureSessionID string `json:"secureSessionID"`
	Amount          int64  `json:"amount"`
	ObjectID        string `json:"objectID"`
	RegionHandle    string `json:"regionHandle"`
	TransactionType int    `json:"transactionType"`
	Description     string `json:"description"`
}

func (h *Handler) payMoneyCharge(w http.ResponseWriter, r *http.Request) {
	var req payChargeRequest
	if !h.decode(w, r, &req) {
		return
	}
	txID, err := h.ledger.PayCharge(r.Context(), ledger.PayChargeRequest{
		Sender:          req.SenderID,
		SessionID:       req.SessionID,
		SecureSessionID: req.SecureSessionID,
		Amount:          req.Amount,
		ObjectID:        req.ObjectID,
		RegionHandle:    req.RegionHandle,
		Type:            money.TransactionType(req.TransactionType),
		Description:     req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, transactionIDResponse{Success: true, TransactionID: txID})
}

type transactionRequest struct {
	AccountID       string `json:"accountID"`
	SessionID       string `json:"sessionID"`
	SecureSessionID string `json:"secureSessionID"`
	TransactionID   string `json:"transactionID"`
	SecureCode      string `json:"secureCode"`
}

func (h *Handler) cancelTransfer(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ledger.Cancel(r.Context(), req.AccountID, req.SessionID, req.SecureSessionID, req.TransactionID, req.SecureCode); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, statusResponse{Success: true})
}

type transactionResponse struct {
	Success     bool              `json:"success"`
	Transaction money.Transaction `json:"transaction"`
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := h.ledger.GetTransaction(r.Context(), req.AccountID, req.SessionID, req.SecureSessionID, req.TransactionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, transactionResponse{Success: true, Transaction: tx})
}

// --- web endpoints ----------------------------------------------------------

type webLoginRequest struct {
	AccountID    string `json:"accountID"`
	PasswordHash string `json:"passwordHash"`
}

type webLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

func (h *Handler) webLogin(w http.ResponseWriter, r *http.Request) {
	var req webLoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	token, err := h.ledger.WebLogin(r.Context(), req.AccountID, req.PasswordHash)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, webLoginResponse{Success: true, Token: token})
}

type webSessionRequest struct {
	AccountID string `json:"accountID"`
	Token     string `json:"token"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Offset    int    `json:"offset"`
	Limit     int    `json:"limit"`
}

func (h *Handler) webLogout(w http.ResponseWriter, r *http.Request) {
	var req webSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ledger.WebLogout(r.Context(), req.AccountID, req.Token); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, statusResponse{Success: true})
}

func (h *Handler) webGetBalance(w http.ResponseWriter, r *http.Request) {
	var req webSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	balance, err := h.ledger.WebBalance(r.Context(), req.AccountID, req.Token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, balanceResponse{Success: true, Balance: balance})
}

type webTransactionsResponse struct {
	Success      bool                `json:"success"`
	Transactions []money.Transaction `json:"transactions"`
}

func (h *Handler) webGetTransaction(w http.ResponseWriter, r *http.Request) {
	var req webSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	txs, err := h.ledger.WebTransactions(r.Context(), req.AccountID, req.Token, req.Start, req.End, req.Offset, req.Limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if txs == nil {
		txs = []money.Transaction{}
	}
	h.writeJSON(w, webTransactionsResponse{Success: true, Transactions: txs})
}

type webTransactionNumResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

func (h *Handler) webGetTransactionNum(w http.ResponseWriter, r *http.Request) {
	var req webSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	count, err := h.ledger.WebTransactionCount(r.Context(), req.AccountID, req.Token, req.Start, req.End)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, webTransactionNumResponse{Success: true, Count: count})
}

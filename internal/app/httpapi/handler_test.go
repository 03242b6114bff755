package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
	"github.com/virtualgrid/moneyserver/internal/app/metrics"
	"github.com/virtualgrid/moneyserver/internal/app/services/ledger"
	"github.com/virtualgrid/moneyserver/internal/app/services/sessions"
	"github.com/virtualgrid/moneyserver/internal/app/storage/memory"
	"github.com/virtualgrid/moneyserver/internal/config"
	"github.com/virtualgrid/moneyserver/pkg/logger"
)

type noopNotifier struct{}

func (noopNotifier) UpdateBalance(ctx context.Context, simAddress, accountID string, balance int64, message string) {
}
func (noopNotifier) ConfirmDelivery(ctx context.Context, simAddress string, tx money.Transaction) error {
	return nil
}

const origin = "grid.example:8008"

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	cfg := config.LedgerConfig{
		OriginServer:   origin,
		DefaultBalance: 1000,
		DeadTime:       60 * time.Second,
		SweepInterval:  60 * time.Second,
	}
	svc := ledger.NewService(memory.New(), sessions.NewRegistry(), noopNotifier{},
		metrics.NewRegistry(nil), cfg, logger.NewDefault("test"))
	h := NewHandler(svc, logger.NewDefault("test"))
	r := mux.NewRouter()
	h.Register(r, nil)
	return r
}

func rpc(t *testing.T, r *mux.Router, method string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/rpc/"+method, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func loginAlice(t *testing.T, r *mux.Router) string {
	t.Helper()
	var resp balanceResponse
	rec := rpc(t, r, "ClientLogin", clientLoginRequest{
		AvatarID:        "alice",
		SessionID:       "sess",
		SecureSessionID: "secure",
		SimAddress:      "http://sim.example:9000",
		AvatarName:      "Alice Avatar",
		PasswordHash:    "hash",
	}, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
	require.EqualValues(t, 1000, resp.Balance)
	return money.JoinAccountID("alice", origin)
}

func TestClientLoginAndBalance(t *testing.T) {
	r := newTestRouter(t)
	alice := loginAlice(t, r)

	var resp balanceResponse
	rec := rpc(t, r, "GetBalance", sessionRequest{
		AccountID: alice, SessionID: "sess", SecureSessionID: "secure",
	}, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
	require.EqualValues(t, 1000, resp.Balance)
}

func TestSessionFailureEnvelope(t *testing.T) {
	r := newTestRouter(t)
	alice := loginAlice(t, r)

	var resp statusResponse
	rec := rpc(t, r, "GetBalance", sessionRequest{
		AccountID: alice, SessionID: "stolen", SecureSessionID: "secure",
	}, &resp)
	// Auth failures are HTTP 200 with a generic message.
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, resp.Success)
	require.Equal(t, sessionFailureMessage, resp.Message)
}

func TestTransferMoneyEndpoint(t *testing.T) {
	r := newTestRouter(t)
	alice := loginAlice(t, r)
	bob := money.JoinAccountID("bob", origin)

	var resp transactionIDResponse
	rec := rpc(t, r, "TransferMoney", transferRequest{
		SenderID: alice, ReceiverID: bob,
		SessionID: "sess", SecureSessionID: "secure",
		Amount: 300, TransactionType: int(money.TypeGift),
	}, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.TransactionID)

	var txResp transactionResponse
	rec = rpc(t, r, "GetTransaction", transactionRequest{
		AccountID: alice, SessionID: "sess", SecureSessionID: "secure",
		TransactionID: resp.TransactionID,
	}, &txResp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, txResp.Success)
	require.EqualValues(t, 300, txResp.Transaction.Amount)
	require.Equal(t, money.StatusSuccess, txResp.Transaction.Status)
}

func TestTransferInsufficientFundsEnvelope(t *testing.T) {
	r := newTestRouter(t)
	alice := loginAlice(t, r)

	var resp statusResponse
	rec := rpc(t, r, "TransferMoney", transferRequest{
		SenderID: alice, ReceiverID: money.JoinAccountID("bob", origin),
		SessionID: "sess", SecureSessionID: "secure",
		Amount: 999999,
	}, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, resp.Success)
	require.Equal(t, "insufficient funds", resp.Message)
}

func TestForceTransferForbiddenByDefault(t *testing.T) {
	r := newTestRouter(t)
	alice := loginAlice(t, r)

	var resp statusResponse
	rec := rpc(t, r, "ForceTransferMoney", transferRequest{
		SenderID: alice, ReceiverID: money.JoinAccountID("bob", origin), Amount: 10,
	}, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, resp.Success)
	require.Equal(t, "operation not permitted", resp.Message)
}

func TestCancelTransferChecksSecureCode(t *testing.T) {
	r := newTestRouter(t)
	alice := loginAlice(t, r)

	var transferResp transactionIDResponse
	rec := rpc(t, r, "TransferMoney", transferRequest{
		SenderID: alice, ReceiverID: money.JoinAccountID("bob", origin),
		SessionID: "sess", SecureSessionID: "secure",
		Amount: 10, SecureCode: "cancel-code",
	}, &transferResp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, transferResp.Success)

	// A wrong secure code is an auth failure, not a settled-transaction error.
	var resp statusResponse
	rec = rpc(t, r, "CancelTransfer", transactionRequest{
		AccountID: alice, SessionID: "sess", SecureSessionID: "secure",
		TransactionID: transferResp.TransactionID, SecureCode: "wrong",
	}, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, resp.Success)
	require.Equal(t, sessionFailureMessage, resp.Message)

	// The right code reaches the status check: the transfer settled already.
	rec = rpc(t, r, "CancelTransfer", transactionRequest{
		AccountID: alice, SessionID: "sess", SecureSessionID: "secure",
		TransactionID: transferResp.TransactionID, SecureCode: "cancel-code",
	}, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, resp.Success)
	require.Equal(t, "transaction already settled", resp.Message)
}

func TestMalformedBodyRejected(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc/GetBalance", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/rpc/GetBalance", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebEndpoints(t *testing.T) {
	r := newTestRouter(t)
	alice := loginAlice(t, r)

	var loginResp webLoginResponse
	rec := rpc(t, r, "WebLogin", webLoginRequest{AccountID: alice, PasswordHash: "hash"}, &loginResp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, loginResp.Success)
	require.NotEmpty(t, loginResp.Token)

	var balResp balanceResponse
	rec = rpc(t, r, "WebGetBalance", webSessionRequest{AccountID: alice, Token: loginResp.Token}, &balResp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1000, balResp.Balance)

	var numResp webTransactionNumResponse
	rec = rpc(t, r, "WebGetTransactionNum", webSessionRequest{AccountID: alice, Token: loginResp.Token}, &numResp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, numResp.Success)
	require.Zero(t, numResp.Count)

	var listResp webTransactionsResponse
	rec = rpc(t, r, "WebGetTransaction", webSessionRequest{AccountID: alice, Token: loginResp.Token, Limit: 10}, &listResp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, listResp.Success)
	require.Empty(t, listResp.Transactions)

	var outResp statusResponse
	rec = rpc(t, r, "WebLogout", webSessionRequest{AccountID: alice, Token: loginResp.Token}, &outResp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, outResp.Success)

	rec = rpc(t, r, "WebGetBalance", webSessionRequest{AccountID: alice, Token: loginResp.Token}, &outResp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, outResp.Success)
	require.Equal(t, sessionFailureMessage, outResp.Message)
}

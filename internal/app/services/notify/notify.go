// Package notify delivers balance and transfer events to region servers over
// HTTP. The region endpoint is the simulator address recorded for the user at
// login.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
	"github.com/virtualgrid/moneyserver/pkg/logger"
)

// confirmTimeout bounds the synchronous in-world delivery confirmation. The
// region must answer within this window or the transfer is rolled back.
const confirmTimeout = 30 * time.Second

// Client posts JSON events to region servers.
type Client struct {
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: confirmTimeout},
		log:        log,
	}
}

// NewClientWithHTTP injects the underlying HTTP client, for tests.
func NewClientWithHTTP(httpClient *http.Client, log *logger.Logger) *Client {
	return &Client{httpClient: httpClient, log: log}
}

type balanceUpdate struct {
	Method    string `json:"method"`
	AccountID string `json:"accountID"`
	Balance   int64  `json:"balance"`
	Message   string `json:"message,omitempty"`
}

type transferEvent struct {
	Method        string `json:"method"`
	TransactionID string `json:"transactionID"`
	Sender        string `json:"senderID"`
	Receiver      string `json:"receiverID"`
	Amount        int64  `json:"amount"`
	ObjectID      string `json:"objectID,omitempty"`
	Type          int    `json:"type"`
}

type eventResponse struct {
	Success bool `json:"success"`
}

// UpdateBalance tells the region to refresh the viewer-side balance display.
// Delivery is best effort; failures are logged and do not affect the
// transaction outcome.
func (c *Client) UpdateBalance(ctx context.Context, simAddress, accountID string, balance int64, message string) {
	if simAddress == "" {
		return
	}
	req := balanceUpdate{
		Method:    "UpdateBalance",
		AccountID: accountID,
		Balance:   balance,
		Message:   message,
	}
	if _, err := c.post(ctx, simAddress, req); err != nil {
		c.log.WithError(err).WithFields(map[string]any{
			"sim":     simAddress,
			"account": accountID,
		}).Warn("balance update notification failed")
	}
}

// ConfirmDelivery asks the region to hand over the purchased object. The
// transfer settles only if the region reports success within the timeout.
func (c *Client) ConfirmDelivery(ctx context.Context, simAddress string, tx money.Transaction) error {
	if simAddress == "" {
		return fmt.Errorf("%w: no sim address", money.ErrDeliveryFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	req := transferEvent{
		Method:        "OnMoneyTransfered",
		TransactionID: tx.ID,
		Sender:        tx.Sender,
		Receiver:      tx.Receiver,
		Amount:        tx.Amount,
		ObjectID:      tx.ObjectID,
		Type:          int(tx.Type),
	}
	resp, err := c.post(ctx, simAddress, req)
	if err != nil {
		return fmt.Errorf("%w: %v", money.ErrDeliveryFailed, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: region declined", money.ErrDeliveryFailed)
	}
	return nil
}

func (c *Client) post(ctx context.Context, simAddress string, payload any) (eventResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return eventResponse{}, fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, simAddress, bytes.NewReader(body))
	if err != nil {
		return eventResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eventResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eventResponse{}, fmt.Errorf("region returned status %d", resp.StatusCode)
	}
	var out eventResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return eventResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

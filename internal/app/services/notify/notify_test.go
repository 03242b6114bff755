package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
	"github.com/virtualgrid/moneyserver/pkg/logger"
)

func TestConfirmDeliverySuccess(t *testing.T) {
	var got transferEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(eventResponse{Success: true})
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.Client(), logger.NewDefault("test"))
	tx := money.Transaction{
		ID: "tx1", Sender: "alice@grid", Receiver: "bob@grid",
		Amount: 100, ObjectID: "obj1", Type: money.TypeObjectPurchase,
	}
	if err := c.ConfirmDelivery(context.Background(), srv.URL, tx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Method != "OnMoneyTransfered" || got.TransactionID != "tx1" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestConfirmDeliveryDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(eventResponse{Success: false})
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.Client(), logger.NewDefault("test"))
	err := c.ConfirmDelivery(context.Background(), srv.URL, money.Transaction{ID: "tx1"})
	if !errors.Is(err, money.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestConfirmDeliveryBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.Client(), logger.NewDefault("test"))
	err := c.ConfirmDelivery(context.Background(), srv.URL, money.Transaction{ID: "tx1"})
	if !errors.Is(err, money.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestConfirmDeliveryNoSimAddress(t *testing.T) {
	c := NewClient(logger.NewDefault("test"))
	err := c.ConfirmDelivery(context.Background(), "", money.Transaction{ID: "tx1"})
	if !errors.Is(err, money.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestUpdateBalanceBestEffort(t *testing.T) {
	received := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		var req balanceUpdate
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Method != "UpdateBalance" || req.Balance != 750 {
			t.Errorf("unexpected payload: %+v", req)
		}
		json.NewEncoder(w).Encode(eventResponse{Success: true})
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.Client(), logger.NewDefault("test"))
	c.UpdateBalance(context.Background(), srv.URL, "alice@grid", 750, "paid")
	if received != 1 {
		t.Fatalf("received = %d, want 1", received)
	}

	// An unreachable region must not panic or error out.
	c.UpdateBalance(context.Background(), "http://127.0.0.1:1", "alice@grid", 750, "")
	c.UpdateBalance(context.Background(), "", "alice@grid", 750, "")
}

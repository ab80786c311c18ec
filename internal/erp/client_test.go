package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSyncOrder(t *testing.T) {
	var got syncOrderRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sync-order" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	record := OrderRecord{
		Status:        "NEW",
		CustomerName:  "Иван",
		CustomerPhone: "+79990001122",
		Items: []OrderRecordItem{
			{ItemID: "A", Title: "Tea", UnitPrice: 520, Quantity: 2},
		},
		Subtotal:    1040,
		Tax:         map[string]int64{"5": 52},
		Total:       1092,
		PaymentMode: "CASH_ON_DELIVERY",
		Source:      "web",
	}

	c := NewClient(srv.URL)
	if err := c.SyncOrder(context.Background(), "order-1", record); err != nil {
		t.Fatalf("SyncOrder error: %v", err)
	}

	if got.OrderID != "order-1" {
		t.Fatalf("order id = %s, want order-1", got.OrderID)
	}
	if got.Order.Total != 1092 || got.Order.Tax["5"] != 52 {
		t.Fatalf("unexpected record: %+v", got.Order)
	}
}

func TestSyncOrder_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.SyncOrder(context.Background(), "order-1", OrderRecord{}); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}

func TestSyncOrder_NotConfigured(t *testing.T) {
	c := NewClient("")
	if err := c.SyncOrder(context.Background(), "order-1", OrderRecord{}); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}

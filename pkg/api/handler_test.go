package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evergrid/creditbook/pkg/escrow"
	"github.com/evergrid/creditbook/pkg/journal"
	"github.com/evergrid/creditbook/pkg/logging"
	"github.com/evergrid/creditbook/pkg/market"
	"github.com/evergrid/creditbook/pkg/orderbook"
	"github.com/evergrid/creditbook/pkg/token"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	stablecoin := token.NewStablecoin()
	credit := token.NewCreditToken()
	log := logging.NewLogger(logging.ERROR)
	gw := escrow.NewGateway(stablecoin, credit, "custody", log)
	store := orderbook.NewMemoryStore()
	j := journal.NewJournal()
	engine := orderbook.NewEngine(store, gw, j, log)
	mkt := market.NewService(store, nil, 100, time.Second, log)

	handler := NewHandler(engine, gw, mkt, stablecoin, credit)
	srv := httptest.NewServer(NewServer(handler, nil, true).Router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, account string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if account != "" {
		req.Header.Set("X-Account", account)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func fundAccounts(t *testing.T, srv *httptest.Server) {
	t.Helper()

	steps := []struct {
		path    string
		account string
		body    interface{}
	}{
		{"/faucet/credit", "alice", mintRequest{TokenID: 1, Qty: 1000}},
		{"/faucet/stablecoin", "bob", mintRequest{Amount: "1000.00"}},
		{"/approvals/credit", "alice", struct{}{}},
		{"/approvals/stablecoin", "bob", approveStablecoinRequest{Amount: "1000.00"}},
	}
	for _, s := range steps {
		resp, payload := doJSON(t, srv, http.MethodPost, s.path, s.account, s.body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d payload %v", s.path, resp.StatusCode, payload)
		}
	}
}

func TestPlaceFillAndQueryOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	fundAccounts(t, srv)

	resp, payload := doJSON(t, srv, http.MethodPost, "/orders", "alice", placeOrderRequest{
		TokenID: 1, IsBuy: false, Price: "1.00", Amount: 100,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place: status %d payload %v", resp.StatusCode, payload)
	}
	if payload["transactionHash"] == "" {
		t.Error("missing transactionHash")
	}
	orderID := payload["orderId"].(float64)
	if orderID != 1 {
		t.Errorf("orderId = %v, want 1", orderID)
	}

	resp, payload = doJSON(t, srv, http.MethodPost, "/orders/1/fills", "bob", fillOrderRequest{Amount: 40})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fill: status %d payload %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, srv, http.MethodGet, "/orders/1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status %d", resp.StatusCode)
	}
	if payload["filled"].(float64) != 40 || payload["active"].(bool) != true {
		t.Errorf("order state: %v", payload)
	}
	if payload["price"] != "1.000000" {
		t.Errorf("price = %v, want 1.000000", payload["price"])
	}

	resp, payload = doJSON(t, srv, http.MethodGet, "/orders/1/active", "", nil)
	if resp.StatusCode != http.StatusOK || payload["active"].(bool) != true {
		t.Errorf("active query: status %d payload %v", resp.StatusCode, payload)
	}
}

func TestBookEndpointPartitionsSides(t *testing.T) {
	srv := newTestServer(t)
	fundAccounts(t, srv)

	doJSON(t, srv, http.MethodPost, "/orders", "alice", placeOrderRequest{
		TokenID: 1, IsBuy: false, Price: "1.10", Amount: 50,
	})
	doJSON(t, srv, http.MethodPost, "/orders", "bob", placeOrderRequest{
		TokenID: 1, IsBuy: true, Price: "0.90", Amount: 50,
	})

	resp, payload := doJSON(t, srv, http.MethodGet, "/book?token=1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("book: status %d", resp.StatusCode)
	}
	buys := payload["buys"].([]interface{})
	sells := payload["sells"].([]interface{})
	if len(buys) != 1 || len(sells) != 1 {
		t.Errorf("buys=%d sells=%d, want 1/1", len(buys), len(sells))
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	fundAccounts(t, srv)

	// zero price -> validation error
	resp, _ := doJSON(t, srv, http.MethodPost, "/orders", "alice", placeOrderRequest{
		TokenID: 1, IsBuy: false, Price: "0", Amount: 10,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero price: status %d, want 400", resp.StatusCode)
	}

	// sub-micro precision is not representable
	resp, _ = doJSON(t, srv, http.MethodPost, "/orders", "alice", placeOrderRequest{
		TokenID: 1, IsBuy: false, Price: "1.0000001", Amount: 10,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("7 dp price: status %d, want 400", resp.StatusCode)
	}

	// no approvals -> precondition failed
	resp, _ = doJSON(t, srv, http.MethodPost, "/orders", "mallory", placeOrderRequest{
		TokenID: 1, IsBuy: false, Price: "1.00", Amount: 10,
	})
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Errorf("unapproved maker: status %d, want 412", resp.StatusCode)
	}

	// unknown order -> not found
	resp, _ = doJSON(t, srv, http.MethodGet, "/orders/99", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown order: status %d, want 404", resp.StatusCode)
	}

	// overfill -> conflict
	doJSON(t, srv, http.MethodPost, "/orders", "alice", placeOrderRequest{
		TokenID: 1, IsBuy: false, Price: "1.00", Amount: 10,
	})
	resp, _ = doJSON(t, srv, http.MethodPost, "/orders/1/fills", "bob", fillOrderRequest{Amount: 11})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("overfill: status %d, want 409", resp.StatusCode)
	}

	// missing identity
	resp, _ = doJSON(t, srv, http.MethodPost, "/orders", "", placeOrderRequest{
		TokenID: 1, IsBuy: false, Price: "1.00", Amount: 10,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing account: status %d, want 401", resp.StatusCode)
	}
}

func TestNextOrderIDEndpoint(t *testing.T) {
	srv := newTestServer(t)
	fundAccounts(t, srv)

	resp, payload := doJSON(t, srv, http.MethodGet, "/next-order-id", "", nil)
	if resp.StatusCode != http.StatusOK || payload["nextOrderId"].(float64) != 1 {
		t.Fatalf("fresh ledger: status %d payload %v", resp.StatusCode, payload)
	}

	doJSON(t, srv, http.MethodPost, "/orders", "alice", placeOrderRequest{
		TokenID: 1, IsBuy: false, Price: "1.00", Amount: 10,
	})
	_, payload = doJSON(t, srv, http.MethodGet, "/next-order-id", "", nil)
	if payload["nextOrderId"].(float64) != 2 {
		t.Errorf("nextOrderId = %v, want 2", payload["nextOrderId"])
	}
}

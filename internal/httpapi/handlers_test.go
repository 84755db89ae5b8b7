package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pharmabill/backend/internal/cart"
	"pharmabill/backend/internal/domain"
	"pharmabill/backend/internal/service"
	"pharmabill/backend/internal/store/memory"
)

func newTestHandler() http.Handler {
	svc := service.New(memory.NewSeeded(), cart.NewMemoryStore(), time.Hour)
	return New(svc, "http://127.0.0.1:3000").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSecurityHeadersAlwaysSet(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodGet, "/healthz", nil)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://127.0.0.1:3000" {
		t.Fatalf("unexpected CORS origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCheckoutCreatesInvoice(t *testing.T) {
	handler := newTestHandler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", domain.CheckoutRequest{
		StaffID:       "staff-1",
		PaymentMethod: domain.PaymentCash,
		Lines:         []domain.CartLine{{BatchID: "batch-ors-a", Quantity: 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.Invoice.Number, "INV") {
		t.Fatalf("expected INV-prefixed number, got %q", resp.Invoice.Number)
	}
	if len(resp.Invoice.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Invoice.Items))
	}

	// The stored invoice is retrievable by number.
	lookup := doJSON(t, handler, http.MethodGet, "/api/v1/invoices/"+resp.Invoice.Number, nil)
	if lookup.Code != http.StatusOK {
		t.Fatalf("expected 200 on lookup, got %d", lookup.Code)
	}
}

func TestCheckoutShortfallReturnsConflictWithDetail(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodPost, "/api/v1/checkout", domain.CheckoutRequest{
		StaffID:       "staff-1",
		PaymentMethod: domain.PaymentCash,
		Lines:         []domain.CartLine{{MedicineID: "med-cetriz", Quantity: 20}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Wanted    int `json:"wanted"`
		Available int `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Wanted != 20 || resp.Available != 8 {
		t.Fatalf("expected wanted=20 available=8, got %+v", resp)
	}
}

func TestCheckoutUnknownBatchReturns404(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodPost, "/api/v1/checkout", domain.CheckoutRequest{
		StaffID:       "staff-1",
		PaymentMethod: domain.PaymentCash,
		Lines:         []domain.CartLine{{BatchID: "batch-ghost", Quantity: 1}},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCheckoutRejectsUnknownFields(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodPost, "/api/v1/checkout", map[string]any{
		"staff_id":       "staff-1",
		"payment_method": "CASH",
		"discount":       "10%",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestCheckoutEmptyCartReturns400(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodPost, "/api/v1/checkout", domain.CheckoutRequest{
		StaffID:       "staff-1",
		PaymentMethod: domain.PaymentCash,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListMedicinesIncludesSellableStock(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodGet, "/api/v1/medicines?q=dolo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Medicines []domain.MedicineStock `json:"medicines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Medicines) != 1 {
		t.Fatalf("expected 1 medicine, got %d", len(resp.Medicines))
	}
	if resp.Medicines[0].TotalStock != 100 {
		t.Fatalf("expected total stock 100, got %d", resp.Medicines[0].TotalStock)
	}
}

func TestAllocationPreviewEndpoint(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodPost, "/api/v1/allocations/preview", domain.AllocationPreviewRequest{
		Line: domain.CartLine{MedicineID: "med-dolo650", Quantity: 50},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.AllocationPreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Available != 100 || len(resp.Allocations) != 2 {
		t.Fatalf("unexpected preview %+v", resp)
	}
}

func TestBatchAdjustEndpoint(t *testing.T) {
	handler := newTestHandler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/batches/batch-ors-a/adjust", domain.BatchAdjustRequest{
		CountedQuantity: 95,
		Reason:          "stocktake",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Batch domain.Batch `json:"batch"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Batch.CurrentQuantity != 95 {
		t.Fatalf("expected quantity 95, got %d", resp.Batch.CurrentQuantity)
	}

	movements := doJSON(t, handler, http.MethodGet, "/api/v1/batches/batch-ors-a/movements", nil)
	if movements.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", movements.Code)
	}
	var movementResp struct {
		Movements []domain.StockMovement `json:"movements"`
	}
	if err := json.Unmarshal(movements.Body.Bytes(), &movementResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(movementResp.Movements) != 1 || movementResp.Movements[0].Action != domain.ActionAdjustment {
		t.Fatalf("expected one ADJUSTMENT movement, got %+v", movementResp.Movements)
	}
}

func TestCartEndpoints(t *testing.T) {
	handler := newTestHandler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/cart/items", cartItemRequest{
		TerminalID: "terminal-1",
		BatchID:    "batch-amox-a",
		Quantity:   2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	get := doJSON(t, handler, http.MethodGet, "/api/v1/cart?terminal_id=terminal-1", nil)
	if get.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", get.Code)
	}
	var resp domain.CartResponse
	if err := json.Unmarshal(get.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Cart.Items) != 1 || resp.Cart.Items[0].Quantity != 2 {
		t.Fatalf("unexpected cart %+v", resp.Cart)
	}

	cleared := doJSON(t, handler, http.MethodDelete, "/api/v1/cart?terminal_id=terminal-1", nil)
	if cleared.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", cleared.Code)
	}
}

func TestBatchSearchEndpoint(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodGet, "/api/v1/batches/search?q=cetirizine", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Batches []domain.Batch `json:"batches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Only the unexpired cetirizine batch is sellable.
	if len(resp.Batches) != 1 || resp.Batches[0].ID != "batch-cetriz-a" {
		t.Fatalf("unexpected batches %+v", resp.Batches)
	}
}

func TestStaffLookup(t *testing.T) {
	handler := newTestHandler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/staff/staff-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Staff domain.Staff `json:"staff"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Staff.Name != "Ravi Menon" {
		t.Fatalf("unexpected staff %+v", resp.Staff)
	}

	missing := doJSON(t, handler, http.MethodGet, "/api/v1/staff/staff-ghost", nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodDelete, "/api/v1/checkout", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestInvoiceLookupUnknownReturns404(t *testing.T) {
	rec := doJSON(t, newTestHandler(), http.MethodGet, "/api/v1/invoices/INV20260101-deadbeef", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

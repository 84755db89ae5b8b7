package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pharmabill/backend/internal/allocator"
	"pharmabill/backend/internal/domain"
	"pharmabill/backend/internal/service"
	"pharmabill/backend/internal/store"
)

type API struct {
	service       *service.Service
	allowedOrigin string
}

func New(svc *service.Service, allowedOrigin string) *API {
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/api/v1/medicines", a.handleMedicines)
	mux.HandleFunc("/api/v1/medicines/", a.handleMedicineActions)
	mux.HandleFunc("/api/v1/batches", a.handleBatches)
	mux.HandleFunc("/api/v1/batches/", a.handleBatchActions)
	mux.HandleFunc("/api/v1/allocations/preview", a.handleAllocationPreview)
	mux.HandleFunc("/api/v1/checkout", a.handleCheckout)
	mux.HandleFunc("/api/v1/invoices/", a.handleInvoiceLookup)
	mux.HandleFunc("/api/v1/cart", a.handleCart)
	mux.HandleFunc("/api/v1/cart/items", a.handleCartItems)
	mux.HandleFunc("/api/v1/customers", a.handleCustomers)
	mux.HandleFunc("/api/v1/customers/", a.handleCustomerLookup)
	mux.HandleFunc("/api/v1/suppliers", a.handleSuppliers)
	mux.HandleFunc("/api/v1/staff/", a.handleStaffLookup)
	mux.HandleFunc("/api/v1/reports/dashboard", a.handleDashboard)
	mux.HandleFunc("/api/v1/reports/sales", a.handleSalesReport)

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleMedicines(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		includeInactive := query.Get("include_inactive") == "true"
		medicines, err := a.service.ListMedicines(r.Context(), query.Get("q"), query.Get("category"), includeInactive)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
	case http.MethodPost:
		var req domain.MedicineCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		medicine, err := a.service.CreateMedicine(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"medicine": medicine})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleMedicineActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/medicines/"), "/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("medicine id required"))
		return
	}

	switch {
	case strings.HasSuffix(tail, "/stock"):
		id := strings.Trim(strings.TrimSuffix(tail, "/stock"), "/")
		available, err := a.service.AvailableStock(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"medicine_id": id, "available": available})
	case strings.HasSuffix(tail, "/batches"):
		id := strings.Trim(strings.TrimSuffix(tail, "/batches"), "/")
		batches, err := a.service.ListSellableBatches(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
	default:
		medicine, err := a.service.GetMedicine(r.Context(), tail)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"medicine": medicine})
	}
}

func (a *API) handleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		filter := domain.BatchListFilter{
			Query:      query.Get("q"),
			Category:   query.Get("category"),
			AlertsOnly: query.Get("alerts") == "true",
			Limit:      parsePositiveLimit(query.Get("limit"), 200, 500),
		}
		batches, err := a.service.ListBatches(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
	case http.MethodPost:
		var req domain.BatchCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		batch, err := a.service.CreateBatch(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"batch": batch})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleBatchActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/batches/"), "/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("batch id required"))
		return
	}

	// POS item lookup by medicine name or barcode.
	if tail == "search" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		query := r.URL.Query()
		batches, err := a.service.SearchSellableBatches(r.Context(), query.Get("q"), parsePositiveLimit(query.Get("limit"), 10, 50))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
		return
	}

	switch {
	case strings.HasSuffix(tail, "/adjust"):
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		id := strings.Trim(strings.TrimSuffix(tail, "/adjust"), "/")
		var req domain.BatchAdjustRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		batch, err := a.service.AdjustBatch(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
	case strings.HasSuffix(tail, "/movements"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		id := strings.Trim(strings.TrimSuffix(tail, "/movements"), "/")
		movements, err := a.service.ListMovements(r.Context(), id, parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
	default:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		batch, err := a.service.GetBatch(r.Context(), tail)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
	}
}

func (a *API) handleAllocationPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.AllocationPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.PreviewAllocation(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	invoice, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invoice": invoice})
}

func (a *API) handleInvoiceLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	number := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/invoices/"), "/")
	if number == "" {
		writeError(w, http.StatusBadRequest, errors.New("invoice number required"))
		return
	}

	invoice, err := a.service.GetInvoice(r.Context(), number)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	terminalID := strings.TrimSpace(r.URL.Query().Get("terminal_id"))

	switch r.Method {
	case http.MethodGet:
		resp, err := a.service.GetCart(r.Context(), terminalID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodDelete:
		if err := a.service.ClearCart(r.Context(), terminalID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

type cartItemRequest struct {
	TerminalID string `json:"terminal_id"`
	BatchID    string `json:"batch_id"`
	Quantity   int    `json:"quantity"`
}

func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if r.Method == http.MethodPost || r.Method == http.MethodPatch {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	switch r.Method {
	case http.MethodPost:
		resp, err := a.service.AddCartItem(r.Context(), req.TerminalID, req.BatchID, req.Quantity)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPatch:
		resp, err := a.service.UpdateCartItem(r.Context(), req.TerminalID, req.BatchID, req.Quantity)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		customers, err := a.service.SearchCustomers(r.Context(), query.Get("q"), parsePositiveLimit(query.Get("limit"), 20, 100))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/customers/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("customer id required"))
		return
	}

	customer, err := a.service.GetCustomer(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleStaffLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/staff/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("staff id required"))
		return
	}

	staff, err := a.service.GetStaff(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	dashboard, err := a.service.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	report, err := a.service.SalesReport(r.Context(), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// writeServiceError maps domain and storage errors onto HTTP statuses. A
// stock shortfall keeps its wanted/available detail in the payload so the
// terminal can show the cashier what is actually left.
func writeServiceError(w http.ResponseWriter, err error) {
	var shortfall *allocator.InsufficientStockError
	if errors.As(err, &shortfall) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":       shortfall.Error(),
			"medicine_id": shortfall.MedicineID,
			"batch_id":    shortfall.BatchID,
			"wanted":      shortfall.Wanted,
			"available":   shortfall.Available,
		})
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidRequest), errors.Is(err, store.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 4xx messages are user-facing; 5xx messages stay generic so storage
	// errors never leak to the terminal.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

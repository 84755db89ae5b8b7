package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pharmabill/backend/internal/allocator"
	"pharmabill/backend/internal/domain"
	"pharmabill/backend/internal/pricing"
	"pharmabill/backend/internal/store"
	"pharmabill/backend/internal/xid"
)

// Store is an in-memory Repository used for tests and dev mode. A single
// mutex guards all state, so checkouts serialize the same way row locks do
// in the postgres backend.
type Store struct {
	mu            sync.RWMutex
	medicines     map[string]domain.Medicine
	batches       map[string]domain.Batch
	movements     []domain.StockMovement
	invoices      map[string]domain.Invoice
	invoiceOrder  []string
	customers     map[string]domain.Customer
	staff         map[string]domain.Staff
	suppliers     map[string]domain.Supplier
	supplierOrder []string
}

func New() *Store {
	return &Store{
		medicines: make(map[string]domain.Medicine),
		batches:   make(map[string]domain.Batch),
		movements: make([]domain.StockMovement, 0, 128),
		invoices:  make(map[string]domain.Invoice),
		customers: make(map[string]domain.Customer),
		staff:     make(map[string]domain.Staff),
		suppliers: make(map[string]domain.Supplier),
	}
}

// NewSeeded returns a store preloaded with a small pharmacy catalog. Expiry
// dates are relative to the current date so sellability checks behave the
// same whenever the suite runs.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	s.staff["staff-1"] = domain.Staff{ID: "staff-1", Name: "Ravi Menon", Position: "Pharmacist"}

	for _, sup := range []domain.Supplier{
		{ID: "sup-1", Name: "MedPlus Distributors", Phone: "9800011122", Place: "Kochi"},
		{ID: "sup-2", Name: "Apollo Wholesale", Phone: "9800033344", Place: "Chennai"},
	} {
		s.suppliers[sup.ID] = sup
		s.supplierOrder = append(s.supplierOrder, sup.ID)
	}

	medicines := []domain.Medicine{
		{ID: "med-dolo650", Name: "Dolo 650", Brand: "Micro Labs", Category: "Analgesic", Strength: "650mg", PackSize: 15, PackType: "Strip", HSNCode: "3004", GSTPercent: decimal.RequireFromString("12"), Barcode: "8901234100011", Active: true, CreatedAt: now},
		{ID: "med-amox500", Name: "Amoxycillin 500", Brand: "Cipla", Category: "Antibiotic", Strength: "500mg", PackSize: 10, PackType: "Strip", HSNCode: "3004", GSTPercent: decimal.RequireFromString("12"), Barcode: "8901234100028", Active: true, CreatedAt: now},
		{ID: "med-cetriz", Name: "Cetirizine 10", Brand: "Dr Reddy's", Category: "Antiallergic", Strength: "10mg", PackSize: 10, PackType: "Strip", HSNCode: "3004", GSTPercent: decimal.RequireFromString("5"), Active: true, CreatedAt: now},
		{ID: "med-ors", Name: "ORS Sachet", Brand: "Electral", Category: "Rehydration", PackSize: 1, PackType: "Sachet", HSNCode: "3004", GSTPercent: decimal.RequireFromString("5"), Barcode: "8901234100042", Active: true, CreatedAt: now},
		{ID: "med-bcomplex", Name: "B-Complex Syrup", Brand: "Pfizer", Category: "Supplement", PackSize: 1, PackType: "Bottle", HSNCode: "3003", GSTPercent: decimal.RequireFromString("18"), Active: true, CreatedAt: now},
	}
	for _, m := range medicines {
		s.medicines[m.ID] = m
	}

	batches := []domain.Batch{
		{ID: "batch-dolo-a", BatchNumber: "DL2401", MedicineID: "med-dolo650", InitialQuantity: 40, CurrentQuantity: 40, PurchasePrice: decimal.RequireFromString("22.00"), SalePrice: decimal.RequireFromString("31.50"), ExpirationDate: daysFromNow(now, 120), Active: true, SupplierID: "sup-1", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "batch-dolo-b", BatchNumber: "DL2407", MedicineID: "med-dolo650", InitialQuantity: 60, CurrentQuantity: 60, PurchasePrice: decimal.RequireFromString("21.00"), SalePrice: decimal.RequireFromString("31.50"), ExpirationDate: daysFromNow(now, 240), Active: true, SupplierID: "sup-1", CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "batch-amox-a", BatchNumber: "AX0093", MedicineID: "med-amox500", InitialQuantity: 25, CurrentQuantity: 25, PurchasePrice: decimal.RequireFromString("48.00"), SalePrice: decimal.RequireFromString("72.00"), ExpirationDate: daysFromNow(now, 90), Active: true, SupplierID: "sup-2", CreatedAt: now.Add(-72 * time.Hour)},
		{ID: "batch-cetriz-a", BatchNumber: "CZ5510", MedicineID: "med-cetriz", InitialQuantity: 30, CurrentQuantity: 8, PurchasePrice: decimal.RequireFromString("9.00"), SalePrice: decimal.RequireFromString("14.00"), ExpirationDate: daysFromNow(now, 60), Active: true, SupplierID: "sup-1", CreatedAt: now.Add(-96 * time.Hour)},
		{ID: "batch-cetriz-old", BatchNumber: "CZ5301", MedicineID: "med-cetriz", InitialQuantity: 12, CurrentQuantity: 12, PurchasePrice: decimal.RequireFromString("8.50"), SalePrice: decimal.RequireFromString("14.00"), ExpirationDate: daysFromNow(now, -30), Active: true, SupplierID: "sup-1", CreatedAt: now.Add(-2000 * time.Hour)},
		{ID: "batch-ors-a", BatchNumber: "OR1180", MedicineID: "med-ors", InitialQuantity: 100, CurrentQuantity: 100, PurchasePrice: decimal.RequireFromString("14.00"), SalePrice: decimal.RequireFromString("21.25"), ExpirationDate: daysFromNow(now, 365), Active: true, SupplierID: "sup-2", CreatedAt: now.Add(-12 * time.Hour)},
		{ID: "batch-bcomplex-a", BatchNumber: "BC7001", MedicineID: "med-bcomplex", InitialQuantity: 30, CurrentQuantity: 30, PurchasePrice: decimal.RequireFromString("62.00"), SalePrice: decimal.RequireFromString("95.00"), ExpirationDate: daysFromNow(now, 200), Active: true, SupplierID: "sup-2", CreatedAt: now.Add(-36 * time.Hour)},
		{ID: "batch-bcomplex-x", BatchNumber: "BC6320", MedicineID: "med-bcomplex", InitialQuantity: 20, CurrentQuantity: 20, PurchasePrice: decimal.RequireFromString("60.00"), SalePrice: decimal.RequireFromString("95.00"), ExpirationDate: daysFromNow(now, 150), Active: false, SupplierID: "sup-2", CreatedAt: now.Add(-800 * time.Hour)},
	}
	for _, b := range batches {
		s.batches[b.ID] = b
	}

	s.customers["cust-1"] = domain.Customer{ID: "cust-1", Name: "Anita Sharma", Phone: "9876501234", Email: "anita@example.com", CreatedAt: now}

	return s
}

func (s *Store) ListMedicines(_ context.Context, query string, category string, includeInactive bool) ([]domain.MedicineStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	today := dateOnly(time.Now().UTC())

	result := make([]domain.MedicineStock, 0, len(s.medicines))
	for _, m := range s.medicines {
		if !includeInactive && !m.Active {
			continue
		}
		if category != "" && !strings.EqualFold(m.Category, category) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(m.Name), query) &&
			!strings.Contains(strings.ToLower(m.Brand), query) &&
			!strings.Contains(strings.ToLower(m.Barcode), query) {
			continue
		}
		result = append(result, domain.MedicineStock{Medicine: m, TotalStock: s.sellableTotalLocked(m.ID, today)})
	}

	slices.SortFunc(result, func(a, b domain.MedicineStock) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetMedicineByID(_ context.Context, id string) (*domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.medicines[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := m
	return &copied, nil
}

func (s *Store) CreateMedicine(_ context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if medicine.Name == "" || medicine.PackSize < 1 || medicine.PackType == "" {
		return nil, store.ErrInvalidRequest
	}
	if medicine.GSTPercent.IsNegative() || medicine.GSTPercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, store.ErrInvalidRequest
	}
	if medicine.Barcode != "" {
		for _, existing := range s.medicines {
			if existing.Barcode == medicine.Barcode {
				return nil, store.ErrInvalidRequest
			}
		}
	}
	if medicine.ID == "" {
		medicine.ID = xid.New("med")
	}
	if medicine.CreatedAt.IsZero() {
		medicine.CreatedAt = time.Now().UTC()
	}
	medicine.Active = true
	s.medicines[medicine.ID] = medicine
	created := medicine
	return &created, nil
}

func (s *Store) AvailableStock(_ context.Context, medicineID string, today time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.medicines[medicineID]; !ok {
		return 0, store.ErrNotFound
	}
	return s.sellableTotalLocked(medicineID, dateOnly(today)), nil
}

func (s *Store) FindSellableBatches(_ context.Context, medicineID string, today time.Time) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.medicines[medicineID]; !ok {
		return nil, store.ErrNotFound
	}
	return s.sellableBatchesLocked(medicineID, dateOnly(today)), nil
}

func (s *Store) SearchSellableBatches(_ context.Context, query string, today time.Time, limit int) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	day := dateOnly(today)
	if limit < 1 {
		limit = 10
	}

	matches := make([]domain.Batch, 0, limit)
	for _, b := range s.batches {
		if !b.Sellable(day) {
			continue
		}
		m := s.medicines[b.MedicineID]
		if query != "" &&
			!strings.Contains(strings.ToLower(m.Name), query) &&
			!strings.Contains(strings.ToLower(m.Barcode), query) {
			continue
		}
		matches = append(matches, s.annotateLocked(b))
	}

	sortBatchesByExpiry(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) ListBatches(_ context.Context, filter domain.BatchListFilter) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	today := dateOnly(time.Now().UTC())
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	result := make([]domain.Batch, 0, limit)
	for _, b := range s.batches {
		m := s.medicines[b.MedicineID]
		if filter.AlertsOnly && b.CurrentQuantity > lowStockThreshold && !b.ExpirationDate.Before(today) {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(m.Category, filter.Category) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(b.BatchNumber), query) &&
			!strings.Contains(strings.ToLower(m.Name), query) {
			continue
		}
		result = append(result, s.annotateLocked(b))
	}

	sortBatchesByExpiry(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetBatchByID(_ context.Context, id string) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	annotated := s.annotateLocked(b)
	return &annotated, nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.BatchNumber == "" || batch.InitialQuantity < 1 {
		return nil, store.ErrInvalidRequest
	}
	if batch.SalePrice.LessThanOrEqual(decimal.Zero) || batch.PurchasePrice.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrInvalidRequest
	}
	if _, ok := s.medicines[batch.MedicineID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.batches {
		if existing.MedicineID == batch.MedicineID && existing.BatchNumber == batch.BatchNumber {
			return nil, store.ErrInvalidRequest
		}
	}

	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	batch.CurrentQuantity = batch.InitialQuantity
	batch.Active = true
	s.batches[batch.ID] = batch

	s.movements = append(s.movements, domain.StockMovement{
		ID:         xid.New("mov"),
		MedicineID: batch.MedicineID,
		BatchID:    batch.ID,
		Action:     domain.ActionPurchase,
		Quantity:   batch.InitialQuantity,
		CreatedAt:  batch.CreatedAt,
	})

	created := s.annotateLocked(batch)
	return &created, nil
}

// AdjustBatchQuantity records a stocktake correction. Only downward
// corrections are supported; upward corrections go through batch intake so
// every increase stays attributable to a purchase.
func (s *Store) AdjustBatchQuantity(_ context.Context, batchID string, counted int) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if counted < 0 || counted > b.CurrentQuantity {
		return nil, store.ErrInvalidRequest
	}
	if counted == b.CurrentQuantity {
		annotated := s.annotateLocked(b)
		return &annotated, nil
	}

	delta := b.CurrentQuantity - counted
	b.CurrentQuantity = counted
	s.batches[batchID] = b
	s.movements = append(s.movements, domain.StockMovement{
		ID:         xid.New("mov"),
		MedicineID: b.MedicineID,
		BatchID:    b.ID,
		Action:     domain.ActionAdjustment,
		Quantity:   delta,
		CreatedAt:  time.Now().UTC(),
	})

	annotated := s.annotateLocked(b)
	return &annotated, nil
}

func (s *Store) ListMovements(_ context.Context, batchID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(result) < limit; i-- {
		if batchID != "" && s.movements[i].BatchID != batchID {
			continue
		}
		result = append(result, s.movements[i])
	}
	return result, nil
}

func (s *Store) Checkout(_ context.Context, req domain.CheckoutRequest) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(req.Lines) == 0 {
		return nil, store.ErrEmptyCart
	}
	if _, ok := s.staff[req.StaffID]; !ok {
		return nil, store.ErrNotFound
	}
	if req.CustomerID != "" {
		if _, ok := s.customers[req.CustomerID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	now := time.Now().UTC()
	today := dateOnly(now)
	number := xid.InvoiceNumber(now)
	if _, exists := s.invoices[number]; exists {
		return nil, store.ErrConflict
	}

	// Deductions are staged so a failing line leaves every batch untouched.
	staged := make(map[string]int)
	items := make([]domain.InvoiceItem, 0, len(req.Lines))
	movements := make([]domain.StockMovement, 0, len(req.Lines))
	totalAmount := decimal.Zero
	gstAmount := decimal.Zero

	for _, line := range req.Lines {
		if line.Quantity < 0 {
			return nil, store.ErrInvalidRequest
		}

		var allocations []allocator.Allocation
		var err error
		switch {
		case line.BatchID != "":
			b, ok := s.batches[line.BatchID]
			if !ok {
				return nil, store.ErrNotFound
			}
			b.CurrentQuantity -= staged[b.ID]
			allocations, err = allocator.Direct(b, line.Quantity, today)
		case line.MedicineID != "":
			if _, ok := s.medicines[line.MedicineID]; !ok {
				return nil, store.ErrNotFound
			}
			pool := make([]domain.Batch, 0, 8)
			for _, b := range s.batches {
				if b.MedicineID != line.MedicineID {
					continue
				}
				b.CurrentQuantity -= staged[b.ID]
				pool = append(pool, b)
			}
			allocations, err = allocator.FIFO(line.MedicineID, pool, line.Quantity, today)
		default:
			return nil, store.ErrInvalidRequest
		}
		if err != nil {
			return nil, err
		}

		for _, alloc := range allocations {
			medicine := s.medicines[alloc.Batch.MedicineID]
			amounts := pricing.Line(alloc.Batch.SalePrice, alloc.Quantity, medicine.GSTPercent)

			staged[alloc.Batch.ID] += alloc.Quantity
			items = append(items, domain.InvoiceItem{
				InvoiceNumber: number,
				MedicineID:    medicine.ID,
				MedicineName:  medicine.Name,
				BatchID:       alloc.Batch.ID,
				BatchNumber:   alloc.Batch.BatchNumber,
				UnitPrice:     alloc.Batch.SalePrice,
				Quantity:      alloc.Quantity,
				GSTPercent:    medicine.GSTPercent,
				GSTAmount:     amounts.Tax,
				TotalAmount:   amounts.Total,
			})
			movements = append(movements, domain.StockMovement{
				ID:            xid.New("mov"),
				MedicineID:    medicine.ID,
				BatchID:       alloc.Batch.ID,
				Action:        domain.ActionSale,
				Quantity:      alloc.Quantity,
				InvoiceNumber: number,
				CreatedAt:     now,
			})
			totalAmount = totalAmount.Add(amounts.Base)
			gstAmount = gstAmount.Add(amounts.Tax)
		}
	}

	for id, qty := range staged {
		b := s.batches[id]
		if b.CurrentQuantity < qty {
			return nil, fmt.Errorf("batch %s deduction would go negative", id)
		}
		b.CurrentQuantity -= qty
		s.batches[id] = b
	}
	s.movements = append(s.movements, movements...)

	invoice := domain.Invoice{
		Number:        number,
		CustomerID:    req.CustomerID,
		StaffID:       req.StaffID,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentStatusPaid,
		TotalAmount:   totalAmount,
		GSTAmount:     gstAmount,
		GrandTotal:    totalAmount.Add(gstAmount),
		CreatedAt:     now,
		Items:         items,
	}
	s.invoices[number] = invoice
	s.invoiceOrder = append(s.invoiceOrder, number)

	copied := copyInvoice(invoice)
	return &copied, nil
}

func (s *Store) GetInvoiceByNumber(_ context.Context, number string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoices[number]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := copyInvoice(invoice)
	return &copied, nil
}

func (s *Store) SearchCustomers(_ context.Context, query string, limit int) ([]domain.CustomerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	if limit < 1 {
		limit = 20
	}

	result := make([]domain.CustomerSummary, 0, limit)
	for _, c := range s.customers {
		if query != "" &&
			!strings.Contains(strings.ToLower(c.Name), query) &&
			!strings.Contains(c.Phone, query) {
			continue
		}
		summary := domain.CustomerSummary{Customer: c, LifetimeValue: decimal.Zero}
		for _, number := range s.invoiceOrder {
			invoice := s.invoices[number]
			if invoice.CustomerID == c.ID {
				summary.OrderCount++
				summary.LifetimeValue = summary.LifetimeValue.Add(invoice.GrandTotal)
			}
		}
		result = append(result, summary)
	}

	slices.SortFunc(result, func(a, b domain.CustomerSummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := c
	return &copied, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidRequest
	}
	for _, existing := range s.customers {
		if existing.Phone == customer.Phone {
			return nil, store.ErrInvalidRequest
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetStaffByID(_ context.Context, id string) (*domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.staff[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := st
	return &copied, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Supplier, 0, len(s.supplierOrder))
	for _, id := range s.supplierOrder {
		result = append(result, s.suppliers[id])
	}
	return result, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" {
		return nil, store.ErrInvalidRequest
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	s.suppliers[supplier.ID] = supplier
	s.supplierOrder = append(s.supplierOrder, supplier.ID)
	created := supplier
	return &created, nil
}

func (s *Store) GetDashboard(_ context.Context, now time.Time) (*domain.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := dateOnly(now)
	dashboard := domain.Dashboard{
		SalesToday:       decimal.Zero,
		LowStockBatches:  make([]domain.Batch, 0, 3),
		ExpiredBatches:   make([]domain.Batch, 0, 3),
		RecentInvoices:   make([]domain.Invoice, 0, 5),
		RevenueLast7Days: make([]domain.DailyRevenue, 0, 7),
	}

	byDay := make(map[string]decimal.Decimal, 7)
	for _, number := range s.invoiceOrder {
		invoice := s.invoices[number]
		day := dateOnly(invoice.CreatedAt)
		if day.Equal(today) {
			dashboard.SalesToday = dashboard.SalesToday.Add(invoice.GrandTotal)
			dashboard.InvoicesToday++
		}
		key := day.Format("2006-01-02")
		byDay[key] = byDay[key].Add(invoice.GrandTotal)
	}
	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		key := day.Format("2006-01-02")
		dashboard.RevenueLast7Days = append(dashboard.RevenueLast7Days, domain.DailyRevenue{Date: key, Revenue: byDay[key]})
	}

	lowStock := make([]domain.Batch, 0, 8)
	expired := make([]domain.Batch, 0, 8)
	for _, b := range s.batches {
		if b.CurrentQuantity <= lowStockThreshold && b.Active {
			lowStock = append(lowStock, s.annotateLocked(b))
		}
		if b.ExpirationDate.Before(today) && b.CurrentQuantity > 0 {
			expired = append(expired, s.annotateLocked(b))
		}
	}
	dashboard.LowStockCount = len(lowStock)
	dashboard.ExpiredCount = len(expired)
	slices.SortFunc(lowStock, func(a, b domain.Batch) int { return a.CurrentQuantity - b.CurrentQuantity })
	sortBatchesByExpiry(expired)
	dashboard.LowStockBatches = trimBatches(lowStock, 3)
	dashboard.ExpiredBatches = trimBatches(expired, 3)

	for i := len(s.invoiceOrder) - 1; i >= 0 && len(dashboard.RecentInvoices) < 5; i-- {
		dashboard.RecentInvoices = append(dashboard.RecentInvoices, copyInvoice(s.invoices[s.invoiceOrder[i]]))
	}

	return &dashboard, nil
}

func (s *Store) GetSalesReport(_ context.Context, from time.Time, to time.Time) (*domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromDay := dateOnly(from)
	toDay := dateOnly(to)
	report := domain.SalesReport{
		From:          fromDay.Format("2006-01-02"),
		To:            toDay.Format("2006-01-02"),
		TotalRevenue:  decimal.Zero,
		TaxLiability:  decimal.Zero,
		AvgOrderValue: decimal.Zero,
		DailyRevenue:  make([]domain.DailyRevenue, 0, 31),
		TopCategories: make([]domain.CategorySales, 0, 5),
	}

	byDay := make(map[string]decimal.Decimal)
	byCategory := make(map[string]decimal.Decimal)
	for _, number := range s.invoiceOrder {
		invoice := s.invoices[number]
		day := dateOnly(invoice.CreatedAt)
		if day.Before(fromDay) || day.After(toDay) {
			continue
		}
		report.InvoiceCount++
		report.TotalRevenue = report.TotalRevenue.Add(invoice.GrandTotal)
		report.TaxLiability = report.TaxLiability.Add(invoice.GSTAmount)
		key := day.Format("2006-01-02")
		byDay[key] = byDay[key].Add(invoice.GrandTotal)
		for _, item := range invoice.Items {
			category := s.medicines[item.MedicineID].Category
			byCategory[category] = byCategory[category].Add(item.TotalAmount)
		}
	}

	if report.InvoiceCount > 0 {
		report.AvgOrderValue = report.TotalRevenue.Div(decimal.NewFromInt(int64(report.InvoiceCount))).Round(2)
	}

	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		if revenue, ok := byDay[key]; ok {
			report.DailyRevenue = append(report.DailyRevenue, domain.DailyRevenue{Date: key, Revenue: revenue})
		}
	}

	for category, total := range byCategory {
		report.TopCategories = append(report.TopCategories, domain.CategorySales{Category: category, Total: total})
	}
	slices.SortFunc(report.TopCategories, func(a, b domain.CategorySales) int {
		return b.Total.Cmp(a.Total)
	})
	if len(report.TopCategories) > 5 {
		report.TopCategories = report.TopCategories[:5]
	}

	return &report, nil
}

const lowStockThreshold = 10

func (s *Store) sellableBatchesLocked(medicineID string, today time.Time) []domain.Batch {
	batches := make([]domain.Batch, 0, 8)
	for _, b := range s.batches {
		if b.MedicineID != medicineID || !b.Sellable(today) {
			continue
		}
		batches = append(batches, s.annotateLocked(b))
	}
	sortBatchesByExpiry(batches)
	return batches
}

func (s *Store) sellableTotalLocked(medicineID string, today time.Time) int {
	total := 0
	for _, b := range s.batches {
		if b.MedicineID == medicineID && b.Sellable(today) {
			total += b.CurrentQuantity
		}
	}
	return total
}

func (s *Store) annotateLocked(b domain.Batch) domain.Batch {
	if m, ok := s.medicines[b.MedicineID]; ok {
		b.MedicineName = m.Name
		b.GSTPercent = m.GSTPercent
	}
	return b
}

func sortBatchesByExpiry(batches []domain.Batch) {
	slices.SortStableFunc(batches, func(a, b domain.Batch) int {
		if a.ExpirationDate.Equal(b.ExpirationDate) {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
		return a.ExpirationDate.Compare(b.ExpirationDate)
	})
}

func trimBatches(batches []domain.Batch, limit int) []domain.Batch {
	if len(batches) > limit {
		return batches[:limit]
	}
	return batches
}

func copyInvoice(invoice domain.Invoice) domain.Invoice {
	items := make([]domain.InvoiceItem, len(invoice.Items))
	copy(items, invoice.Items)
	invoice.Items = items
	return invoice
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysFromNow(now time.Time, days int) time.Time {
	return dateOnly(now).AddDate(0, 0, days)
}

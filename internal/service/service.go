package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmabill/backend/internal/allocator"
	"pharmabill/backend/internal/cart"
	"pharmabill/backend/internal/domain"
	"pharmabill/backend/internal/pricing"
	"pharmabill/backend/internal/store"
)

type Service struct {
	repo    store.Repository
	carts   cart.Store
	cartTTL time.Duration
}

func New(repo store.Repository, carts cart.Store, cartTTL time.Duration) *Service {
	if cartTTL < time.Minute {
		cartTTL = 2 * time.Hour
	}

	return &Service{
		repo:    repo,
		carts:   carts,
		cartTTL: cartTTL,
	}
}

func todayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) ListMedicines(ctx context.Context, query string, category string, includeInactive bool) ([]domain.MedicineStock, error) {
	return s.repo.ListMedicines(ctx, query, category, includeInactive)
}

func (s *Service) GetMedicine(ctx context.Context, id string) (domain.Medicine, error) {
	medicine, err := s.repo.GetMedicineByID(ctx, id)
	if err != nil {
		return domain.Medicine{}, err
	}
	return *medicine, nil
}

func (s *Service) CreateMedicine(ctx context.Context, req domain.MedicineCreateRequest) (domain.Medicine, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.PackType = strings.TrimSpace(req.PackType)
	req.HSNCode = strings.TrimSpace(req.HSNCode)

	if req.Name == "" || req.PackType == "" || req.PackSize < 1 {
		return domain.Medicine{}, store.ErrInvalidRequest
	}
	if req.GSTPercent.IsNegative() || req.GSTPercent.GreaterThan(decimal.NewFromInt(100)) {
		return domain.Medicine{}, store.ErrInvalidRequest
	}

	medicine := domain.Medicine{
		Name:       req.Name,
		Brand:      strings.TrimSpace(req.Brand),
		Category:   strings.TrimSpace(req.Category),
		Strength:   strings.TrimSpace(req.Strength),
		PackSize:   req.PackSize,
		PackType:   req.PackType,
		HSNCode:    req.HSNCode,
		GSTPercent: req.GSTPercent,
		Barcode:    strings.TrimSpace(req.Barcode),
	}

	created, err := s.repo.CreateMedicine(ctx, medicine)
	if err != nil {
		return domain.Medicine{}, err
	}

	log.Printf("[service] medicine created id=%s name=%s", created.ID, created.Name)
	return *created, nil
}

func (s *Service) AvailableStock(ctx context.Context, medicineID string) (int, error) {
	if medicineID == "" {
		return 0, store.ErrInvalidRequest
	}
	return s.repo.AvailableStock(ctx, medicineID, todayUTC())
}

func (s *Service) ListSellableBatches(ctx context.Context, medicineID string) ([]domain.Batch, error) {
	if medicineID == "" {
		return nil, store.ErrInvalidRequest
	}
	return s.repo.FindSellableBatches(ctx, medicineID, todayUTC())
}

// SearchSellableBatches backs the POS item lookup: name or barcode, sellable
// stock only, nearest expiry first.
func (s *Service) SearchSellableBatches(ctx context.Context, query string, limit int) ([]domain.Batch, error) {
	return s.repo.SearchSellableBatches(ctx, query, todayUTC(), limit)
}

func (s *Service) ListBatches(ctx context.Context, filter domain.BatchListFilter) ([]domain.Batch, error) {
	return s.repo.ListBatches(ctx, filter)
}

func (s *Service) GetBatch(ctx context.Context, id string) (domain.Batch, error) {
	batch, err := s.repo.GetBatchByID(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	return *batch, nil
}

func (s *Service) CreateBatch(ctx context.Context, req domain.BatchCreateRequest) (domain.Batch, error) {
	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	req.MedicineID = strings.TrimSpace(req.MedicineID)
	if req.BatchNumber == "" || req.MedicineID == "" || req.InitialQuantity < 1 {
		return domain.Batch{}, store.ErrInvalidRequest
	}
	if req.SalePrice.LessThanOrEqual(decimal.Zero) || req.PurchasePrice.LessThanOrEqual(decimal.Zero) {
		return domain.Batch{}, store.ErrInvalidRequest
	}

	expiry, err := time.ParseInLocation("2006-01-02", req.ExpirationDate, time.UTC)
	if err != nil {
		return domain.Batch{}, store.ErrInvalidRequest
	}
	if expiry.Before(todayUTC()) {
		return domain.Batch{}, store.ErrInvalidRequest
	}

	batch := domain.Batch{
		BatchNumber:     req.BatchNumber,
		MedicineID:      req.MedicineID,
		InitialQuantity: req.InitialQuantity,
		PurchasePrice:   req.PurchasePrice,
		SalePrice:       req.SalePrice,
		ExpirationDate:  expiry,
		SupplierID:      strings.TrimSpace(req.SupplierID),
	}

	created, err := s.repo.CreateBatch(ctx, batch)
	if err != nil {
		return domain.Batch{}, err
	}

	log.Printf("[service] batch received id=%s medicine=%s qty=%d expiry=%s", created.ID, created.MedicineID, created.InitialQuantity, created.ExpirationDate.Format("2006-01-02"))
	return *created, nil
}

func (s *Service) AdjustBatch(ctx context.Context, batchID string, req domain.BatchAdjustRequest) (domain.Batch, error) {
	if batchID == "" || req.CountedQuantity < 0 {
		return domain.Batch{}, store.ErrInvalidRequest
	}

	adjusted, err := s.repo.AdjustBatchQuantity(ctx, batchID, req.CountedQuantity)
	if err != nil {
		return domain.Batch{}, err
	}

	log.Printf("[service] batch adjusted id=%s counted=%d reason=%s", batchID, req.CountedQuantity, strings.TrimSpace(req.Reason))
	return *adjusted, nil
}

func (s *Service) ListMovements(ctx context.Context, batchID string, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListMovements(ctx, batchID, limit)
}

// PreviewAllocation answers "which batches would this line draw from" without
// locking or deducting anything. The real allocation happens again inside
// checkout, so a preview can go stale.
func (s *Service) PreviewAllocation(ctx context.Context, req domain.AllocationPreviewRequest) (domain.AllocationPreviewResponse, error) {
	line := req.Line
	if err := validateLine(line); err != nil {
		return domain.AllocationPreviewResponse{}, err
	}

	today := todayUTC()
	var allocations []allocator.Allocation
	var available int
	switch {
	case line.BatchID != "":
		batch, err := s.repo.GetBatchByID(ctx, line.BatchID)
		if err != nil {
			return domain.AllocationPreviewResponse{}, err
		}
		if batch.Sellable(today) {
			available = batch.CurrentQuantity
		}
		allocations, err = allocator.Direct(*batch, line.Quantity, today)
		if err != nil {
			return domain.AllocationPreviewResponse{}, err
		}
	default:
		pool, err := s.repo.FindSellableBatches(ctx, line.MedicineID, today)
		if err != nil {
			return domain.AllocationPreviewResponse{}, err
		}
		for _, b := range pool {
			available += b.CurrentQuantity
		}
		allocations, err = allocator.FIFO(line.MedicineID, pool, line.Quantity, today)
		if err != nil {
			return domain.AllocationPreviewResponse{}, err
		}
	}

	resp := domain.AllocationPreviewResponse{
		Allocations: make([]domain.AllocationPreview, 0, len(allocations)),
		Available:   available,
	}
	for _, alloc := range allocations {
		resp.Allocations = append(resp.Allocations, domain.AllocationPreview{
			BatchID:        alloc.Batch.ID,
			BatchNumber:    alloc.Batch.BatchNumber,
			ExpirationDate: alloc.Batch.ExpirationDate,
			SalePrice:      alloc.Batch.SalePrice,
			Quantity:       alloc.Quantity,
		})
	}
	return resp, nil
}

func validateLine(line domain.CartLine) error {
	if line.Quantity < 0 {
		return store.ErrInvalidRequest
	}
	if (line.BatchID == "") == (line.MedicineID == "") {
		return store.ErrInvalidRequest
	}
	return nil
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Invoice, error) {
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.StaffID == "" {
		return domain.Invoice{}, store.ErrInvalidRequest
	}
	switch req.PaymentMethod {
	case domain.PaymentCash, domain.PaymentUPI, domain.PaymentCard:
	default:
		return domain.Invoice{}, store.ErrInvalidRequest
	}
	if len(req.Lines) == 0 {
		return domain.Invoice{}, store.ErrEmptyCart
	}
	for _, line := range req.Lines {
		if err := validateLine(line); err != nil {
			return domain.Invoice{}, err
		}
	}

	invoice, err := s.repo.Checkout(ctx, req)
	if err != nil {
		return domain.Invoice{}, err
	}

	if req.TerminalID != "" {
		if err := s.carts.Delete(ctx, req.TerminalID); err != nil {
			log.Printf("[service] WARN: failed to clear cart terminal=%s: %v", req.TerminalID, err)
		}
	}

	log.Printf("[service] checkout number=%s staff=%s items=%d grand_total=%s", invoice.Number, invoice.StaffID, len(invoice.Items), invoice.GrandTotal)
	return *invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, number string) (domain.Invoice, error) {
	if number == "" {
		return domain.Invoice{}, store.ErrInvalidRequest
	}
	invoice, err := s.repo.GetInvoiceByNumber(ctx, number)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) GetCart(ctx context.Context, terminalID string) (domain.CartResponse, error) {
	if terminalID == "" {
		return domain.CartResponse{}, store.ErrInvalidRequest
	}

	stored, ok, err := s.carts.Get(ctx, terminalID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !ok {
		stored = &domain.Cart{TerminalID: terminalID, Items: []domain.CartItem{}}
	}

	return domain.CartResponse{Cart: *stored, Summary: pricing.CartSummary(stored.Items)}, nil
}

// AddCartItem puts a batch on the terminal's cart, merging quantity when the
// batch is already present. Stock is only advisory here; the hard check
// happens at checkout.
func (s *Service) AddCartItem(ctx context.Context, terminalID string, batchID string, quantity int) (domain.CartResponse, error) {
	if terminalID == "" || batchID == "" || quantity < 1 {
		return domain.CartResponse{}, store.ErrInvalidRequest
	}

	batch, err := s.repo.GetBatchByID(ctx, batchID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !batch.Sellable(todayUTC()) {
		return domain.CartResponse{}, store.ErrInvalidRequest
	}

	stored, ok, err := s.carts.Get(ctx, terminalID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !ok {
		stored = &domain.Cart{TerminalID: terminalID, Items: []domain.CartItem{}}
	}

	merged := false
	for i := range stored.Items {
		if stored.Items[i].BatchID == batchID {
			stored.Items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		stored.Items = append(stored.Items, domain.CartItem{
			BatchID:        batch.ID,
			BatchNumber:    batch.BatchNumber,
			MedicineID:     batch.MedicineID,
			MedicineName:   batch.MedicineName,
			ExpirationDate: batch.ExpirationDate,
			UnitPrice:      batch.SalePrice,
			GSTPercent:     batch.GSTPercent,
			Quantity:       quantity,
		})
	}
	stored.UpdatedAt = time.Now().UTC()

	if err := s.carts.Save(ctx, *stored, s.cartTTL); err != nil {
		return domain.CartResponse{}, err
	}
	return domain.CartResponse{Cart: *stored, Summary: pricing.CartSummary(stored.Items)}, nil
}

// UpdateCartItem sets the quantity for a batch already on the cart. Quantity
// zero removes the line.
func (s *Service) UpdateCartItem(ctx context.Context, terminalID string, batchID string, quantity int) (domain.CartResponse, error) {
	if terminalID == "" || batchID == "" || quantity < 0 {
		return domain.CartResponse{}, store.ErrInvalidRequest
	}

	stored, ok, err := s.carts.Get(ctx, terminalID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !ok {
		return domain.CartResponse{}, store.ErrNotFound
	}

	found := false
	items := make([]domain.CartItem, 0, len(stored.Items))
	for _, item := range stored.Items {
		if item.BatchID == batchID {
			found = true
			if quantity == 0 {
				continue
			}
			item.Quantity = quantity
		}
		items = append(items, item)
	}
	if !found {
		return domain.CartResponse{}, store.ErrNotFound
	}
	stored.Items = items
	stored.UpdatedAt = time.Now().UTC()

	if err := s.carts.Save(ctx, *stored, s.cartTTL); err != nil {
		return domain.CartResponse{}, err
	}
	return domain.CartResponse{Cart: *stored, Summary: pricing.CartSummary(stored.Items)}, nil
}

func (s *Service) ClearCart(ctx context.Context, terminalID string) error {
	if terminalID == "" {
		return store.ErrInvalidRequest
	}
	return s.carts.Delete(ctx, terminalID)
}

func (s *Service) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.CustomerSummary, error) {
	return s.repo.SearchCustomers(ctx, query, limit)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		return domain.Customer{}, store.ErrInvalidRequest
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:  req.Name,
		Phone: req.Phone,
		Email: strings.TrimSpace(req.Email),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidRequest
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
		Email: strings.TrimSpace(req.Email),
		Place: strings.TrimSpace(req.Place),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) GetStaff(ctx context.Context, id string) (domain.Staff, error) {
	staff, err := s.repo.GetStaffByID(ctx, id)
	if err != nil {
		return domain.Staff{}, err
	}
	return *staff, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	dashboard, err := s.repo.GetDashboard(ctx, time.Now().UTC())
	if err != nil {
		return domain.Dashboard{}, err
	}
	return *dashboard, nil
}

// SalesReport covers the closed date range [from, to]. Empty bounds default
// to the last 30 days.
func (s *Service) SalesReport(ctx context.Context, fromStr string, toStr string) (domain.SalesReport, error) {
	to := todayUTC()
	from := to.AddDate(0, 0, -29)

	var err error
	if toStr != "" {
		to, err = time.ParseInLocation("2006-01-02", toStr, time.UTC)
		if err != nil {
			return domain.SalesReport{}, store.ErrInvalidRequest
		}
	}
	if fromStr != "" {
		from, err = time.ParseInLocation("2006-01-02", fromStr, time.UTC)
		if err != nil {
			return domain.SalesReport{}, store.ErrInvalidRequest
		}
	}
	if from.After(to) {
		return domain.SalesReport{}, store.ErrInvalidRequest
	}

	report, err := s.repo.GetSalesReport(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}
	return *report, nil
}

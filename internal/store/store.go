package store

import (
	"context"
	"errors"
	"time"

	"pharmabill/backend/internal/domain"
)

var (
	// ErrNotFound marks lookups for ids that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest marks user-correctable validation failures.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmptyCart rejects a checkout with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrConflict marks lock timeouts and serialization failures during
	// checkout. The caller may retry; the store never retries itself.
	ErrConflict = errors.New("conflicting concurrent update, retry")
)

// Repository is the narrow persistence contract the service layer and the
// checkout flow depend on. Checkout is a single atomic unit of work: either
// the invoice, its items, every batch deduction and every stock movement
// commit together, or none of them do.
type Repository interface {
	ListMedicines(ctx context.Context, query string, category string, includeInactive bool) ([]domain.MedicineStock, error)
	GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error)
	CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error)
	AvailableStock(ctx context.Context, medicineID string, today time.Time) (int, error)

	FindSellableBatches(ctx context.Context, medicineID string, today time.Time) ([]domain.Batch, error)
	SearchSellableBatches(ctx context.Context, query string, today time.Time, limit int) ([]domain.Batch, error)
	ListBatches(ctx context.Context, filter domain.BatchListFilter) ([]domain.Batch, error)
	GetBatchByID(ctx context.Context, id string) (*domain.Batch, error)
	CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)
	AdjustBatchQuantity(ctx context.Context, batchID string, counted int) (*domain.Batch, error)
	ListMovements(ctx context.Context, batchID string, limit int) ([]domain.StockMovement, error)

	Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error)

	SearchCustomers(ctx context.Context, query string, limit int) ([]domain.CustomerSummary, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetStaffByID(ctx context.Context, id string) (*domain.Staff, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)

	GetDashboard(ctx context.Context, now time.Time) (*domain.Dashboard, error)
	GetSalesReport(ctx context.Context, from time.Time, to time.Time) (*domain.SalesReport, error)
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Medicine struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Brand      string          `json:"brand,omitempty"`
	Category   string          `json:"category,omitempty"`
	Strength   string          `json:"strength,omitempty"`
	PackSize   int             `json:"pack_size"`
	PackType   string          `json:"pack_type"`
	HSNCode    string          `json:"hsn_code"`
	GSTPercent decimal.Decimal `json:"gst_percent"`
	Barcode    string          `json:"barcode,omitempty"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
}

type MedicineCreateRequest struct {
	Name       string          `json:"name"`
	Brand      string          `json:"brand"`
	Category   string          `json:"category"`
	Strength   string          `json:"strength"`
	PackSize   int             `json:"pack_size"`
	PackType   string          `json:"pack_type"`
	HSNCode    string          `json:"hsn_code"`
	GSTPercent decimal.Decimal `json:"gst_percent"`
	Barcode    string          `json:"barcode"`
}

// MedicineStock is a catalog row annotated with the total sellable quantity
// across the medicine's batches.
type MedicineStock struct {
	Medicine
	TotalStock int `json:"total_stock"`
}

type Batch struct {
	ID              string          `json:"id"`
	BatchNumber     string          `json:"batch_number"`
	MedicineID      string          `json:"medicine_id"`
	MedicineName    string          `json:"medicine_name,omitempty"`
	GSTPercent      decimal.Decimal `json:"gst_percent"`
	InitialQuantity int             `json:"initial_quantity"`
	CurrentQuantity int             `json:"current_quantity"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	SalePrice       decimal.Decimal `json:"sale_price"`
	ExpirationDate  time.Time       `json:"expiration_date"`
	Active          bool            `json:"active"`
	SupplierID      string          `json:"supplier_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Sellable reports whether the batch may be drawn from on the given day:
// active, not expired, with remaining quantity.
func (b Batch) Sellable(today time.Time) bool {
	return b.Active && b.CurrentQuantity > 0 && !b.ExpirationDate.Before(today)
}

type BatchCreateRequest struct {
	BatchNumber     string          `json:"batch_number"`
	MedicineID      string          `json:"medicine_id"`
	InitialQuantity int             `json:"initial_quantity"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	SalePrice       decimal.Decimal `json:"sale_price"`
	ExpirationDate  string          `json:"expiration_date"`
	SupplierID      string          `json:"supplier_id"`
}

type BatchAdjustRequest struct {
	CountedQuantity int    `json:"counted_quantity"`
	Reason          string `json:"reason"`
}

type BatchListFilter struct {
	Query      string
	Category   string
	AlertsOnly bool
	Limit      int
}

const (
	ActionSale       = "SALE"
	ActionPurchase   = "PURCHASE"
	ActionAdjustment = "ADJUSTMENT"
)

// StockMovement is an append-only audit record of a quantity change to a
// batch. Rows are created inside the transaction that applies the change and
// are never updated or deleted.
type StockMovement struct {
	ID            string    `json:"id"`
	MedicineID    string    `json:"medicine_id"`
	BatchID       string    `json:"batch_id"`
	Action        string    `json:"action"`
	Quantity      int       `json:"quantity"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	PaymentCash = "CASH"
	PaymentUPI  = "UPI"
	PaymentCard = "CARD"
)

const (
	PaymentStatusPaid   = "PAID"
	PaymentStatusUnpaid = "UNPAID"
)

type Invoice struct {
	Number        string          `json:"number"`
	CustomerID    string          `json:"customer_id,omitempty"`
	StaffID       string          `json:"staff_id"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus string          `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	GSTAmount     decimal.Decimal `json:"gst_amount"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []InvoiceItem   `json:"items"`
}

// InvoiceItem snapshots unit price and tax rate at the moment of sale, so
// later catalog edits never alter a stored invoice.
type InvoiceItem struct {
	InvoiceNumber string          `json:"invoice_number"`
	MedicineID    string          `json:"medicine_id"`
	MedicineName  string          `json:"medicine_name"`
	BatchID       string          `json:"batch_id"`
	BatchNumber   string          `json:"batch_number"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
	GSTPercent    decimal.Decimal `json:"gst_percent"`
	GSTAmount     decimal.Decimal `json:"gst_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// CartLine is one requested deduction. Exactly one of BatchID (direct mode)
// or MedicineID (FIFO-by-expiry mode) must be set.
type CartLine struct {
	BatchID    string `json:"batch_id,omitempty"`
	MedicineID string `json:"medicine_id,omitempty"`
	Quantity   int    `json:"quantity"`
}

type CheckoutRequest struct {
	StaffID       string     `json:"staff_id"`
	CustomerID    string     `json:"customer_id,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	TerminalID    string     `json:"terminal_id,omitempty"`
	Lines         []CartLine `json:"lines"`
}

type AllocationPreviewRequest struct {
	Line CartLine `json:"line"`
}

type AllocationPreview struct {
	BatchID        string          `json:"batch_id"`
	BatchNumber    string          `json:"batch_number"`
	ExpirationDate time.Time       `json:"expiration_date"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	Quantity       int             `json:"quantity"`
}

type AllocationPreviewResponse struct {
	Allocations []AllocationPreview `json:"allocations"`
	Available   int                 `json:"available"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// CustomerSummary carries directory stats for the customer list screen.
type CustomerSummary struct {
	Customer
	OrderCount    int             `json:"order_count"`
	LifetimeValue decimal.Decimal `json:"lifetime_value"`
}

type Staff struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

type Supplier struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
	Place string `json:"place,omitempty"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Place string `json:"place"`
}

// Cart is the value type behind the POS cart held between requests, keyed by
// terminal. Display fields are snapshots for rendering only; checkout always
// re-reads price and stock inside its own transaction.
type Cart struct {
	TerminalID string     `json:"terminal_id"`
	Items      []CartItem `json:"items"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CartItem struct {
	BatchID        string          `json:"batch_id"`
	BatchNumber    string          `json:"batch_number"`
	MedicineID     string          `json:"medicine_id"`
	MedicineName   string          `json:"medicine_name"`
	ExpirationDate time.Time       `json:"expiration_date"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	GSTPercent     decimal.Decimal `json:"gst_percent"`
	Quantity       int             `json:"quantity"`
}

type CartSummary struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxTotal   decimal.Decimal `json:"tax_total"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

type CartResponse struct {
	Cart    Cart        `json:"cart"`
	Summary CartSummary `json:"summary"`
}

type DailyRevenue struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
}

type Dashboard struct {
	SalesToday       decimal.Decimal `json:"sales_today"`
	InvoicesToday    int             `json:"invoices_today"`
	LowStockCount    int             `json:"low_stock_count"`
	ExpiredCount     int             `json:"expired_count"`
	LowStockBatches  []Batch         `json:"low_stock_batches"`
	ExpiredBatches   []Batch         `json:"expired_batches"`
	RecentInvoices   []Invoice       `json:"recent_invoices"`
	RevenueLast7Days []DailyRevenue  `json:"revenue_last_7_days"`
}

type CategorySales struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

type SalesReport struct {
	From          string          `json:"from"`
	To            string          `json:"to"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TaxLiability  decimal.Decimal `json:"tax_liability"`
	InvoiceCount  int             `json:"invoice_count"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	DailyRevenue  []DailyRevenue  `json:"daily_revenue"`
	TopCategories []CategorySales `json:"top_categories"`
}

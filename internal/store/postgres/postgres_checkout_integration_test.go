package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmabill/backend/internal/domain"
)

func TestCheckoutDeductsFIFOAndRecordsMovements(t *testing.T) {
	databaseURL := os.Getenv("PHARMABILL_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PHARMABILL_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	medicineID := fmt.Sprintf("med-it-%d", stamp)
	batchNearID := fmt.Sprintf("batch-it-near-%d", stamp)
	batchFarID := fmt.Sprintf("batch-it-far-%d", stamp)
	staffID := fmt.Sprintf("staff-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoice_items WHERE medicine_id = $1`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE number IN (SELECT invoice_number FROM stock_movements WHERE medicine_id = $1 AND invoice_number IS NOT NULL)`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE medicine_id = $1`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM batches WHERE medicine_id = $1`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM staff WHERE id = $1`, staffID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (id, name, position)
		VALUES ($1, 'Integration Staff', 'Pharmacist')
	`, staffID); err != nil {
		t.Fatalf("insert staff: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO medicines (id, name, category, pack_size, pack_type, hsn_code, gst_percent, active, created_at)
		VALUES ($1, 'Integration Tablet', 'Analgesic', 10, 'Strip', '3004', 12, true, now())
	`, medicineID); err != nil {
		t.Fatalf("insert medicine: %v", err)
	}

	nearExpiry := time.Now().UTC().AddDate(0, 0, 30)
	farExpiry := time.Now().UTC().AddDate(0, 0, 300)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, batch_number, medicine_id, initial_quantity, current_quantity,
			purchase_price, sale_price, expiration_date, active, created_at)
		VALUES
			($1, 'IT-NEAR', $3, 5, 5, 60.00, 100.00, $4, true, now()),
			($2, 'IT-FAR',  $3, 20, 20, 60.00, 100.00, $5, true, now())
	`, batchNearID, batchFarID, medicineID, nearExpiry, farExpiry); err != nil {
		t.Fatalf("insert batches: %v", err)
	}

	invoice, err := s.Checkout(ctx, domain.CheckoutRequest{
		StaffID:       staffID,
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{MedicineID: medicineID, Quantity: 8},
		},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if len(invoice.Items) != 2 {
		t.Fatalf("expected 2 invoice items across batches, got %d", len(invoice.Items))
	}
	if invoice.Items[0].BatchID != batchNearID || invoice.Items[0].Quantity != 5 {
		t.Fatalf("expected 5 units from the nearest-expiry batch, got %d from %s", invoice.Items[0].Quantity, invoice.Items[0].BatchID)
	}
	if invoice.Items[1].BatchID != batchFarID || invoice.Items[1].Quantity != 3 {
		t.Fatalf("expected 3 units from the later batch, got %d from %s", invoice.Items[1].Quantity, invoice.Items[1].BatchID)
	}

	// 8 * 100.00 base, 12% GST
	wantTotal := decimal.RequireFromString("800.00")
	wantGST := decimal.RequireFromString("96.00")
	if !invoice.TotalAmount.Equal(wantTotal) {
		t.Fatalf("expected total %s, got %s", wantTotal, invoice.TotalAmount)
	}
	if !invoice.GSTAmount.Equal(wantGST) {
		t.Fatalf("expected gst %s, got %s", wantGST, invoice.GSTAmount)
	}
	if !invoice.GrandTotal.Equal(wantTotal.Add(wantGST)) {
		t.Fatalf("expected grand total %s, got %s", wantTotal.Add(wantGST), invoice.GrandTotal)
	}

	var nearQty, farQty int
	if err := s.db.QueryRowContext(ctx, `SELECT current_quantity FROM batches WHERE id = $1`, batchNearID).Scan(&nearQty); err != nil {
		t.Fatalf("query near batch: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT current_quantity FROM batches WHERE id = $1`, batchFarID).Scan(&farQty); err != nil {
		t.Fatalf("query far batch: %v", err)
	}
	if nearQty != 0 || farQty != 17 {
		t.Fatalf("expected quantities 0 and 17 after checkout, got %d and %d", nearQty, farQty)
	}

	var saleMovements int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int
		FROM stock_movements
		WHERE medicine_id = $1 AND action = $2 AND invoice_number = $3
	`, medicineID, domain.ActionSale, invoice.Number).Scan(&saleMovements); err != nil {
		t.Fatalf("query movements: %v", err)
	}
	if saleMovements != 2 {
		t.Fatalf("expected 2 sale movements, got %d", saleMovements)
	}
}

func TestCheckoutInsufficientStockLeavesBatchesUntouched(t *testing.T) {
	databaseURL := os.Getenv("PHARMABILL_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PHARMABILL_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	medicineID := fmt.Sprintf("med-it-short-%d", stamp)
	batchID := fmt.Sprintf("batch-it-short-%d", stamp)
	staffID := fmt.Sprintf("staff-it-short-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE medicine_id = $1`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM batches WHERE medicine_id = $1`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, medicineID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM staff WHERE id = $1`, staffID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (id, name, position) VALUES ($1, 'Integration Staff', 'Pharmacist')
	`, staffID); err != nil {
		t.Fatalf("insert staff: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO medicines (id, name, pack_size, pack_type, hsn_code, gst_percent, active, created_at)
		VALUES ($1, 'Integration Short Stock', 1, 'Bottle', '3004', 18, true, now())
	`, medicineID); err != nil {
		t.Fatalf("insert medicine: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, batch_number, medicine_id, initial_quantity, current_quantity,
			purchase_price, sale_price, expiration_date, active, created_at)
		VALUES ($1, 'IT-SHORT', $2, 8, 8, 40.00, 65.00, $3, true, now())
	`, batchID, medicineID, time.Now().UTC().AddDate(0, 0, 60)); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	_, err = s.Checkout(ctx, domain.CheckoutRequest{
		StaffID:       staffID,
		PaymentMethod: domain.PaymentUPI,
		Lines: []domain.CartLine{
			{MedicineID: medicineID, Quantity: 20},
		},
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `SELECT current_quantity FROM batches WHERE id = $1`, batchID).Scan(&qty); err != nil {
		t.Fatalf("query batch: %v", err)
	}
	if qty != 8 {
		t.Fatalf("expected batch untouched at 8, got %d", qty)
	}

	var movements int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM stock_movements WHERE medicine_id = $1 AND action = $2
	`, medicineID, domain.ActionSale).Scan(&movements); err != nil {
		t.Fatalf("query movements: %v", err)
	}
	if movements != 0 {
		t.Fatalf("expected no sale movements, got %d", movements)
	}
}

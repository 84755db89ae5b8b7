package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"pharmabill/backend/internal/allocator"
	"pharmabill/backend/internal/domain"
	"pharmabill/backend/internal/pricing"
	"pharmabill/backend/internal/store"
	"pharmabill/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const batchColumns = `
	b.id, b.batch_number, b.medicine_id, m.name, m.gst_percent,
	b.initial_quantity, b.current_quantity, b.purchase_price, b.sale_price,
	b.expiration_date, b.active, COALESCE(b.supplier_id,''), b.created_at
`

func scanBatch(row interface{ Scan(...any) error }) (domain.Batch, error) {
	var b domain.Batch
	err := row.Scan(
		&b.ID, &b.BatchNumber, &b.MedicineID, &b.MedicineName, &b.GSTPercent,
		&b.InitialQuantity, &b.CurrentQuantity, &b.PurchasePrice, &b.SalePrice,
		&b.ExpirationDate, &b.Active, &b.SupplierID, &b.CreatedAt,
	)
	if err != nil {
		return b, err
	}
	b.ExpirationDate = dateUTC(b.ExpirationDate)
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (s *Store) ListMedicines(ctx context.Context, query string, category string, includeInactive bool) ([]domain.MedicineStock, error) {
	query = strings.TrimSpace(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.name, COALESCE(m.brand,''), COALESCE(m.category,''), COALESCE(m.strength,''),
			m.pack_size, m.pack_type, m.hsn_code, m.gst_percent, COALESCE(m.barcode,''), m.active, m.created_at,
			COALESCE((
				SELECT SUM(b.current_quantity)
				FROM batches b
				WHERE b.medicine_id = m.id
					AND b.active = true
					AND b.current_quantity > 0
					AND b.expiration_date >= CURRENT_DATE
			), 0)::int
		FROM medicines m
		WHERE ($1 = '' OR m.name ILIKE '%' || $1 || '%' OR m.brand ILIKE '%' || $1 || '%' OR m.barcode = $1)
			AND ($2 = '' OR m.category ILIKE $2)
			AND ($3 OR m.active = true)
		ORDER BY m.name
	`, query, category, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	medicines := make([]domain.MedicineStock, 0, 128)
	for rows.Next() {
		var m domain.MedicineStock
		if err := rows.Scan(&m.ID, &m.Name, &m.Brand, &m.Category, &m.Strength,
			&m.PackSize, &m.PackType, &m.HSNCode, &m.GSTPercent, &m.Barcode, &m.Active, &m.CreatedAt,
			&m.TotalStock); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return medicines, nil
}

func (s *Store) GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error) {
	var m domain.Medicine
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(brand,''), COALESCE(category,''), COALESCE(strength,''),
			pack_size, pack_type, hsn_code, gst_percent, COALESCE(barcode,''), active, created_at
		FROM medicines
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Brand, &m.Category, &m.Strength,
		&m.PackSize, &m.PackType, &m.HSNCode, &m.GSTPercent, &m.Barcode, &m.Active, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (s *Store) CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	medicine.Name = strings.TrimSpace(medicine.Name)
	if medicine.Name == "" || medicine.PackSize < 1 || medicine.PackType == "" {
		return nil, store.ErrInvalidRequest
	}
	if medicine.GSTPercent.IsNegative() || medicine.GSTPercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, store.ErrInvalidRequest
	}
	if medicine.ID == "" {
		medicine.ID = xid.New("med")
	}
	if medicine.CreatedAt.IsZero() {
		medicine.CreatedAt = time.Now().UTC()
	}
	medicine.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO medicines (id, name, brand, category, strength, pack_size, pack_type, hsn_code, gst_percent, barcode, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, medicine.ID, medicine.Name, nullIfEmpty(medicine.Brand), nullIfEmpty(medicine.Category), nullIfEmpty(medicine.Strength),
		medicine.PackSize, medicine.PackType, medicine.HSNCode, medicine.GSTPercent, nullIfEmpty(medicine.Barcode), medicine.Active, medicine.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRequest
		}
		return nil, err
	}

	created := medicine
	return &created, nil
}

func (s *Store) AvailableStock(ctx context.Context, medicineID string, today time.Time) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((
			SELECT SUM(current_quantity)
			FROM batches
			WHERE medicine_id = m.id AND active = true AND current_quantity > 0 AND expiration_date >= $2
		), 0)::int
		FROM medicines m
		WHERE m.id = $1
	`, medicineID, dateUTC(today)).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return total, nil
}

func (s *Store) FindSellableBatches(ctx context.Context, medicineID string, today time.Time) ([]domain.Batch, error) {
	if _, err := s.GetMedicineByID(ctx, medicineID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE b.medicine_id = $1
			AND b.active = true
			AND b.current_quantity > 0
			AND b.expiration_date >= $2
		ORDER BY b.expiration_date ASC, b.created_at ASC
	`, medicineID, dateUTC(today))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, 8)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) SearchSellableBatches(ctx context.Context, query string, today time.Time, limit int) ([]domain.Batch, error) {
	if limit < 1 {
		limit = 10
	}
	query = strings.TrimSpace(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE ($1 = '' OR m.name ILIKE '%' || $1 || '%' OR m.barcode = $1)
			AND b.active = true
			AND b.current_quantity > 0
			AND b.expiration_date >= $2
		ORDER BY b.expiration_date ASC, b.created_at ASC
		LIMIT $3
	`, query, dateUTC(today), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, limit)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) ListBatches(ctx context.Context, filter domain.BatchListFilter) ([]domain.Batch, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	query := `
		SELECT ` + batchColumns + `
		FROM batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE ($1 = '' OR b.batch_number ILIKE '%' || $1 || '%' OR m.name ILIKE '%' || $1 || '%')
			AND ($2 = '' OR m.category ILIKE $2)
	`
	if filter.AlertsOnly {
		query += ` AND (b.current_quantity <= 10 OR b.expiration_date < CURRENT_DATE)`
	}
	query += `
		ORDER BY b.expiration_date ASC, b.created_at ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, strings.TrimSpace(filter.Query), filter.Category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, limit)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) GetBatchByID(ctx context.Context, id string) (*domain.Batch, error) {
	b, err := scanBatch(s.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE b.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	batch.BatchNumber = strings.TrimSpace(batch.BatchNumber)
	if batch.BatchNumber == "" || batch.InitialQuantity < 1 {
		return nil, store.ErrInvalidRequest
	}
	if batch.SalePrice.LessThanOrEqual(decimal.Zero) || batch.PurchasePrice.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrInvalidRequest
	}
	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	batch.CurrentQuantity = batch.InitialQuantity
	batch.Active = true

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, batch_number, medicine_id, initial_quantity, current_quantity,
			purchase_price, sale_price, expiration_date, active, supplier_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, batch.ID, batch.BatchNumber, batch.MedicineID, batch.InitialQuantity, batch.CurrentQuantity,
		batch.PurchasePrice, batch.SalePrice, dateUTC(batch.ExpirationDate), batch.Active, nullIfEmpty(batch.SupplierID), batch.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRequest
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, medicine_id, batch_id, action, quantity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, xid.New("mov"), batch.MedicineID, batch.ID, domain.ActionPurchase, batch.InitialQuantity, batch.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := batch
	return &created, nil
}

// AdjustBatchQuantity records a stocktake correction. Only downward
// corrections are supported; increases go through batch intake so every
// addition stays attributable to a purchase.
func (s *Store) AdjustBatchQuantity(ctx context.Context, batchID string, counted int) (*domain.Batch, error) {
	if counted < 0 {
		return nil, store.ErrInvalidRequest
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	b, err := scanBatch(tx.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE b.id = $1
		FOR UPDATE OF b
	`, batchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isConflict(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if counted > b.CurrentQuantity {
		return nil, store.ErrInvalidRequest
	}
	if counted == b.CurrentQuantity {
		return &b, nil
	}

	delta := b.CurrentQuantity - counted
	_, err = tx.ExecContext(ctx, `
		UPDATE batches
		SET current_quantity = $2
		WHERE id = $1
	`, batchID, counted)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, medicine_id, batch_id, action, quantity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, xid.New("mov"), b.MedicineID, b.ID, domain.ActionAdjustment, delta, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isConflict(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	b.CurrentQuantity = counted
	return &b, nil
}

func (s *Store) ListMovements(ctx context.Context, batchID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, medicine_id, batch_id, action, quantity, COALESCE(invoice_number,''), created_at
		FROM stock_movements
		WHERE ($1 = '' OR batch_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, batchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.MedicineID, &m.BatchID, &m.Action, &m.Quantity, &m.InvoiceNumber, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// Checkout runs the whole sale inside one serializable transaction. Batch
// rows are locked before quantities are read, so two concurrent sales of the
// same batch serialize and the second sees the first's deduction.
func (s *Store) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.Invoice, error) {
	if len(req.Lines) == 0 {
		return nil, store.ErrEmptyCart
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var staffExists bool
	if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM staff WHERE id = $1)`, req.StaffID).Scan(&staffExists); err != nil {
		return nil, err
	}
	if !staffExists {
		return nil, store.ErrNotFound
	}
	if req.CustomerID != "" {
		var customerExists bool
		if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, req.CustomerID).Scan(&customerExists); err != nil {
			return nil, err
		}
		if !customerExists {
			return nil, store.ErrNotFound
		}
	}

	now := time.Now().UTC()
	today := dateUTC(now)
	number := xid.InvoiceNumber(now)

	items := make([]domain.InvoiceItem, 0, len(req.Lines))
	totalAmount := decimal.Zero
	gstAmount := decimal.Zero

	for _, line := range req.Lines {
		if line.Quantity < 0 {
			return nil, store.ErrInvalidRequest
		}

		var allocations []allocator.Allocation
		switch {
		case line.BatchID != "":
			b, err := scanBatch(pgTx.QueryRowContext(ctx, `
				SELECT `+batchColumns+`
				FROM batches b
				JOIN medicines m ON m.id = b.medicine_id
				WHERE b.id = $1
				FOR UPDATE OF b
			`, line.BatchID))
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, store.ErrNotFound
				}
				if isConflict(err) {
					return nil, store.ErrConflict
				}
				return nil, err
			}
			allocations, err = allocator.Direct(b, line.Quantity, today)
			if err != nil {
				return nil, err
			}
		case line.MedicineID != "":
			var medicineExists bool
			if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM medicines WHERE id = $1)`, line.MedicineID).Scan(&medicineExists); err != nil {
				return nil, err
			}
			if !medicineExists {
				return nil, store.ErrNotFound
			}

			batchRows, err := pgTx.QueryContext(ctx, `
				SELECT `+batchColumns+`
				FROM batches b
				JOIN medicines m ON m.id = b.medicine_id
				WHERE b.medicine_id = $1 AND b.active = true AND b.current_quantity > 0
				ORDER BY b.expiration_date ASC, b.created_at ASC
				FOR UPDATE OF b
			`, line.MedicineID)
			if err != nil {
				if isConflict(err) {
					return nil, store.ErrConflict
				}
				return nil, err
			}
			pool := make([]domain.Batch, 0, 8)
			for batchRows.Next() {
				b, err := scanBatch(batchRows)
				if err != nil {
					_ = batchRows.Close()
					return nil, err
				}
				pool = append(pool, b)
			}
			if err := batchRows.Err(); err != nil {
				_ = batchRows.Close()
				return nil, err
			}
			_ = batchRows.Close()

			allocations, err = allocator.FIFO(line.MedicineID, pool, line.Quantity, today)
			if err != nil {
				return nil, err
			}
		default:
			return nil, store.ErrInvalidRequest
		}

		for _, alloc := range allocations {
			res, err := pgTx.ExecContext(ctx, `
				UPDATE batches
				SET current_quantity = current_quantity - $1
				WHERE id = $2 AND current_quantity >= $1
			`, alloc.Quantity, alloc.Batch.ID)
			if err != nil {
				return nil, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return nil, err
			}
			if affected == 0 {
				return nil, store.ErrConflict
			}

			amounts := pricing.Line(alloc.Batch.SalePrice, alloc.Quantity, alloc.Batch.GSTPercent)
			items = append(items, domain.InvoiceItem{
				InvoiceNumber: number,
				MedicineID:    alloc.Batch.MedicineID,
				MedicineName:  alloc.Batch.MedicineName,
				BatchID:       alloc.Batch.ID,
				BatchNumber:   alloc.Batch.BatchNumber,
				UnitPrice:     alloc.Batch.SalePrice,
				Quantity:      alloc.Quantity,
				GSTPercent:    alloc.Batch.GSTPercent,
				GSTAmount:     amounts.Tax,
				TotalAmount:   amounts.Total,
			})
			totalAmount = totalAmount.Add(amounts.Base)
			gstAmount = gstAmount.Add(amounts.Tax)

			_, err = pgTx.ExecContext(ctx, `
				INSERT INTO stock_movements (id, medicine_id, batch_id, action, quantity, invoice_number, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, xid.New("mov"), alloc.Batch.MedicineID, alloc.Batch.ID, domain.ActionSale, alloc.Quantity, number, now)
			if err != nil {
				return nil, err
			}
		}
	}

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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO invoices (number, customer_id, staff_id, payment_method, payment_status,
			total_amount, gst_amount, grand_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, invoice.Number, nullIfEmpty(invoice.CustomerID), invoice.StaffID, invoice.PaymentMethod, invoice.PaymentStatus,
		invoice.TotalAmount, invoice.GSTAmount, invoice.GrandTotal, invoice.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for _, item := range items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_number, medicine_id, medicine_name, batch_id, batch_number,
				unit_price, quantity, gst_percent, gst_amount, total_amount)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, item.InvoiceNumber, item.MedicineID, item.MedicineName, item.BatchID, item.BatchNumber,
			item.UnitPrice, item.Quantity, item.GSTPercent, item.GSTAmount, item.TotalAmount)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		if isConflict(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	return &invoice, nil
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var customerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT number, customer_id, staff_id, payment_method, payment_status,
			total_amount, gst_amount, grand_total, created_at
		FROM invoices
		WHERE number = $1
	`, number).Scan(
		&invoice.Number,
		&customerID,
		&invoice.StaffID,
		&invoice.PaymentMethod,
		&invoice.PaymentStatus,
		&invoice.TotalAmount,
		&invoice.GSTAmount,
		&invoice.GrandTotal,
		&invoice.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerID.Valid {
		invoice.CustomerID = customerID.String
	}
	invoice.CreatedAt = invoice.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_number, medicine_id, medicine_name, batch_id, batch_number,
			unit_price, quantity, gst_percent, gst_amount, total_amount
		FROM invoice_items
		WHERE invoice_number = $1
		ORDER BY id ASC
	`, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0, 8)
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.InvoiceNumber, &item.MedicineID, &item.MedicineName, &item.BatchID, &item.BatchNumber,
			&item.UnitPrice, &item.Quantity, &item.GSTPercent, &item.GSTAmount, &item.TotalAmount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	invoice.Items = items

	return &invoice, nil
}

func (s *Store) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.CustomerSummary, error) {
	if limit < 1 {
		limit = 20
	}
	query = strings.TrimSpace(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.phone, COALESCE(c.email,''), c.created_at,
			COUNT(i.number)::int,
			COALESCE(SUM(i.grand_total), 0)
		FROM customers c
		LEFT JOIN invoices i ON i.customer_id = c.id
		WHERE ($1 = '' OR c.name ILIKE '%' || $1 || '%' OR c.phone LIKE '%' || $1 || '%')
		GROUP BY c.id
		ORDER BY c.name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.CustomerSummary, 0, limit)
	for rows.Next() {
		var c domain.CustomerSummary
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt, &c.OrderCount, &c.LifetimeValue); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, COALESCE(email,''), created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	customer.Phone = strings.TrimSpace(customer.Phone)
	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidRequest
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.Email), customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRequest
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetStaffByID(ctx context.Context, id string) (*domain.Staff, error) {
	var st domain.Staff
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(position,'')
		FROM staff
		WHERE id = $1
	`, id).Scan(&st.ID, &st.Name, &st.Position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), COALESCE(place,'')
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 64)
	for rows.Next() {
		var item domain.Supplier
		if err := rows.Scan(&item.ID, &item.Name, &item.Phone, &item.Email, &item.Place); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidRequest
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, place)
		VALUES ($1,$2,$3,$4,$5)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Email), nullIfEmpty(supplier.Place))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRequest
		}
		return nil, err
	}

	created := supplier
	return &created, nil
}

func (s *Store) GetDashboard(ctx context.Context, now time.Time) (*domain.Dashboard, error) {
	today := dateUTC(now)
	dashboard := domain.Dashboard{
		SalesToday:       decimal.Zero,
		LowStockBatches:  make([]domain.Batch, 0, 3),
		ExpiredBatches:   make([]domain.Batch, 0, 3),
		RecentInvoices:   make([]domain.Invoice, 0, 5),
		RevenueLast7Days: make([]domain.DailyRevenue, 0, 7),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int, COALESCE(SUM(grand_total), 0)
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2
	`, today, today.AddDate(0, 0, 1)).Scan(&dashboard.InvoicesToday, &dashboard.SalesToday)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM batches WHERE active = true AND current_quantity <= 10)::int,
			(SELECT COUNT(*) FROM batches WHERE expiration_date < $1 AND current_quantity > 0)::int
	`, today).Scan(&dashboard.LowStockCount, &dashboard.ExpiredCount)
	if err != nil {
		return nil, err
	}

	lowRows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE b.active = true AND b.current_quantity <= 10
		ORDER BY b.current_quantity ASC
		LIMIT 3
	`)
	if err != nil {
		return nil, err
	}
	for lowRows.Next() {
		b, err := scanBatch(lowRows)
		if err != nil {
			_ = lowRows.Close()
			return nil, err
		}
		dashboard.LowStockBatches = append(dashboard.LowStockBatches, b)
	}
	if err := lowRows.Err(); err != nil {
		_ = lowRows.Close()
		return nil, err
	}
	_ = lowRows.Close()

	expiredRows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE b.expiration_date < $1 AND b.current_quantity > 0
		ORDER BY b.expiration_date ASC
		LIMIT 3
	`, today)
	if err != nil {
		return nil, err
	}
	for expiredRows.Next() {
		b, err := scanBatch(expiredRows)
		if err != nil {
			_ = expiredRows.Close()
			return nil, err
		}
		dashboard.ExpiredBatches = append(dashboard.ExpiredBatches, b)
	}
	if err := expiredRows.Err(); err != nil {
		_ = expiredRows.Close()
		return nil, err
	}
	_ = expiredRows.Close()

	recentRows, err := s.db.QueryContext(ctx, `
		SELECT number, COALESCE(customer_id,''), staff_id, payment_method, payment_status,
			total_amount, gst_amount, grand_total, created_at
		FROM invoices
		ORDER BY created_at DESC
		LIMIT 5
	`)
	if err != nil {
		return nil, err
	}
	for recentRows.Next() {
		var invoice domain.Invoice
		if err := recentRows.Scan(&invoice.Number, &invoice.CustomerID, &invoice.StaffID, &invoice.PaymentMethod, &invoice.PaymentStatus,
			&invoice.TotalAmount, &invoice.GSTAmount, &invoice.GrandTotal, &invoice.CreatedAt); err != nil {
			_ = recentRows.Close()
			return nil, err
		}
		invoice.CreatedAt = invoice.CreatedAt.UTC()
		dashboard.RecentInvoices = append(dashboard.RecentInvoices, invoice)
	}
	if err := recentRows.Err(); err != nil {
		_ = recentRows.Close()
		return nil, err
	}
	_ = recentRows.Close()

	revenueRows, err := s.db.QueryContext(ctx, `
		SELECT created_at::date, COALESCE(SUM(grand_total), 0)
		FROM invoices
		WHERE created_at >= $1
		GROUP BY created_at::date
	`, today.AddDate(0, 0, -6))
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]decimal.Decimal, 7)
	for revenueRows.Next() {
		var day time.Time
		var revenue decimal.Decimal
		if err := revenueRows.Scan(&day, &revenue); err != nil {
			_ = revenueRows.Close()
			return nil, err
		}
		byDay[day.UTC().Format("2006-01-02")] = revenue
	}
	if err := revenueRows.Err(); err != nil {
		_ = revenueRows.Close()
		return nil, err
	}
	_ = revenueRows.Close()
	for i := 6; i >= 0; i-- {
		key := today.AddDate(0, 0, -i).Format("2006-01-02")
		dashboard.RevenueLast7Days = append(dashboard.RevenueLast7Days, domain.DailyRevenue{Date: key, Revenue: byDay[key]})
	}

	return &dashboard, nil
}

func (s *Store) GetSalesReport(ctx context.Context, from time.Time, to time.Time) (*domain.SalesReport, error) {
	fromDay := dateUTC(from)
	toDay := dateUTC(to)
	report := domain.SalesReport{
		From:          fromDay.Format("2006-01-02"),
		To:            toDay.Format("2006-01-02"),
		TotalRevenue:  decimal.Zero,
		TaxLiability:  decimal.Zero,
		AvgOrderValue: decimal.Zero,
		DailyRevenue:  make([]domain.DailyRevenue, 0, 31),
		TopCategories: make([]domain.CategorySales, 0, 5),
	}
	end := toDay.AddDate(0, 0, 1)

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int, COALESCE(SUM(grand_total), 0), COALESCE(SUM(gst_amount), 0)
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2
	`, fromDay, end).Scan(&report.InvoiceCount, &report.TotalRevenue, &report.TaxLiability)
	if err != nil {
		return nil, err
	}
	if report.InvoiceCount > 0 {
		report.AvgOrderValue = report.TotalRevenue.Div(decimal.NewFromInt(int64(report.InvoiceCount))).Round(2)
	}

	dailyRows, err := s.db.QueryContext(ctx, `
		SELECT created_at::date, COALESCE(SUM(grand_total), 0)
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY created_at::date
		ORDER BY created_at::date
	`, fromDay, end)
	if err != nil {
		return nil, err
	}
	for dailyRows.Next() {
		var day time.Time
		var revenue decimal.Decimal
		if err := dailyRows.Scan(&day, &revenue); err != nil {
			_ = dailyRows.Close()
			return nil, err
		}
		report.DailyRevenue = append(report.DailyRevenue, domain.DailyRevenue{Date: day.UTC().Format("2006-01-02"), Revenue: revenue})
	}
	if err := dailyRows.Err(); err != nil {
		_ = dailyRows.Close()
		return nil, err
	}
	_ = dailyRows.Close()

	categoryRows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(m.category, ''), COALESCE(SUM(ii.total_amount), 0)
		FROM invoice_items ii
		JOIN invoices i ON i.number = ii.invoice_number
		JOIN medicines m ON m.id = ii.medicine_id
		WHERE i.created_at >= $1 AND i.created_at < $2
		GROUP BY m.category
		ORDER BY SUM(ii.total_amount) DESC
		LIMIT 5
	`, fromDay, end)
	if err != nil {
		return nil, err
	}
	defer categoryRows.Close()
	for categoryRows.Next() {
		var row domain.CategorySales
		if err := categoryRows.Scan(&row.Category, &row.Total); err != nil {
			return nil, err
		}
		report.TopCategories = append(report.TopCategories, row)
	}
	if err := categoryRows.Err(); err != nil {
		return nil, err
	}

	return &report, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// isConflict matches serialization failures, deadlocks and lock timeouts.
// Callers surface these as store.ErrConflict so the terminal can retry.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}

func dateUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

// Package allocator decides which batches a requested quantity is drawn
// from. It is pure decision logic: callers pass in the candidate batches and
// apply the resulting allocations inside their own transaction.
package allocator

import (
	"fmt"
	"sort"
	"time"

	"pharmabill/backend/internal/domain"
)

type Allocation struct {
	Batch    domain.Batch
	Quantity int
}

// InsufficientStockError reports a shortfall: how much was wanted and how
// much sellable stock was actually found.
type InsufficientStockError struct {
	MedicineID string
	BatchID    string
	Wanted     int
	Available  int
}

func (e *InsufficientStockError) Error() string {
	if e.BatchID != "" {
		return fmt.Sprintf("insufficient stock in batch %s: wanted %d, available %d", e.BatchID, e.Wanted, e.Available)
	}
	return fmt.Sprintf("insufficient stock for medicine %s: wanted %d, available %d", e.MedicineID, e.Wanted, e.Available)
}

// Direct allocates the full quantity from a single caller-chosen batch. The
// batch must be sellable and hold at least the requested quantity; there is
// no partial allocation and no fallback to other batches.
func Direct(batch domain.Batch, quantity int, today time.Time) ([]Allocation, error) {
	if quantity == 0 {
		return nil, nil
	}

	available := 0
	if batch.Sellable(today) {
		available = batch.CurrentQuantity
	}
	if available < quantity {
		return nil, &InsufficientStockError{
			MedicineID: batch.MedicineID,
			BatchID:    batch.ID,
			Wanted:     quantity,
			Available:  available,
		}
	}

	return []Allocation{{Batch: batch, Quantity: quantity}}, nil
}

// FIFO allocates the requested quantity across the medicine's sellable
// batches, consuming soonest-expiring batches first. Ties on expiry are
// broken by intake order. If the pool cannot cover the request no allocation
// is returned at all.
func FIFO(medicineID string, pool []domain.Batch, quantity int, today time.Time) ([]Allocation, error) {
	if quantity == 0 {
		return nil, nil
	}

	sellable := make([]domain.Batch, 0, len(pool))
	available := 0
	for _, b := range pool {
		if !b.Sellable(today) {
			continue
		}
		sellable = append(sellable, b)
		available += b.CurrentQuantity
	}

	if available < quantity {
		return nil, &InsufficientStockError{
			MedicineID: medicineID,
			Wanted:     quantity,
			Available:  available,
		}
	}

	sort.SliceStable(sellable, func(i, j int) bool {
		if sellable[i].ExpirationDate.Equal(sellable[j].ExpirationDate) {
			return sellable[i].CreatedAt.Before(sellable[j].CreatedAt)
		}
		return sellable[i].ExpirationDate.Before(sellable[j].ExpirationDate)
	})

	allocations := make([]Allocation, 0, len(sellable))
	remaining := quantity
	for _, b := range sellable {
		if remaining == 0 {
			break
		}
		take := remaining
		if take > b.CurrentQuantity {
			take = b.CurrentQuantity
		}
		allocations = append(allocations, Allocation{Batch: b, Quantity: take})
		remaining -= take
	}

	return allocations, nil
}

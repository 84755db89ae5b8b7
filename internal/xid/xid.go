package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// InvoiceNumber formats an invoice number as INV<YYYYMMDD>-<8 hex chars>.
// Collisions are left to the storage layer's uniqueness constraint.
func InvoiceNumber(at time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("INV%s-%08d", at.UTC().Format("20060102"), time.Now().UnixNano()%100000000)
	}
	return fmt.Sprintf("INV%s-%s", at.UTC().Format("20060102"), hex.EncodeToString(buf))
}

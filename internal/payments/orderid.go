package payments

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Order id prefixes by payment path.
const (
	PrefixRental  = "RENTAL"
	PrefixCash    = "CASH"
	PrefixLateFee = "FINE"
)

// NewOrderID returns "<prefix>-<unix ms>-<16 hex chars>". The random suffix
// keeps ids unique across instances issuing orders in the same millisecond.
func NewOrderID(prefix string, now time.Time) (string, error) {
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("generate order id: %w", err)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), hex.EncodeToString(suffix[:])), nil
}

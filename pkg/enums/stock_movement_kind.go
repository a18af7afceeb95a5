package enums

import "fmt"

// StockMovementKind labels an inventory ledger entry.
type StockMovementKind string

const (
	StockMovementReserve StockMovementKind = "reserve"
	StockMovementRelease StockMovementKind = "release"
)

var validStockMovementKinds = []StockMovementKind{
	StockMovementReserve,
	StockMovementRelease,
}

// String implements fmt.Stringer.
func (s StockMovementKind) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockMovementKind.
func (s StockMovementKind) IsValid() bool {
	for _, candidate := range validStockMovementKinds {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockMovementKind converts raw input into a StockMovementKind.
func ParseStockMovementKind(value string) (StockMovementKind, error) {
	for _, candidate := range validStockMovementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement kind %q", value)
}

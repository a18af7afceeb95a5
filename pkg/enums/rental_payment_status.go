package enums

import "fmt"

// RentalPaymentStatus tracks whether a rental has been paid for.
type RentalPaymentStatus string

const (
	RentalPaymentPending   RentalPaymentStatus = "pending"
	RentalPaymentPaid      RentalPaymentStatus = "paid"
	RentalPaymentCancelled RentalPaymentStatus = "cancelled"
)

var validRentalPaymentStatuses = []RentalPaymentStatus{
	RentalPaymentPending,
	RentalPaymentPaid,
	RentalPaymentCancelled,
}

// String implements fmt.Stringer.
func (r RentalPaymentStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RentalPaymentStatus.
func (r RentalPaymentStatus) IsValid() bool {
	for _, candidate := range validRentalPaymentStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRentalPaymentStatus converts raw input into a RentalPaymentStatus.
func ParseRentalPaymentStatus(value string) (RentalPaymentStatus, error) {
	for _, candidate := range validRentalPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rental payment status %q", value)
}

package enums

import "fmt"

// RentalStatus tracks the physical lifecycle of a rented copy.
type RentalStatus string

const (
	RentalStatusOngoing  RentalStatus = "ongoing"
	RentalStatusReturned RentalStatus = "returned"
	RentalStatusOverdue  RentalStatus = "overdue"
)

var validRentalStatuses = []RentalStatus{
	RentalStatusOngoing,
	RentalStatusReturned,
	RentalStatusOverdue,
}

// String implements fmt.Stringer.
func (r RentalStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RentalStatus.
func (r RentalStatus) IsValid() bool {
	for _, candidate := range validRentalStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRentalStatus converts raw input into a RentalStatus.
func ParseRentalStatus(value string) (RentalStatus, error) {
	for _, candidate := range validRentalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rental status %q", value)
}

package rentals

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// TotalPrice is the rental charge for the requested number of days.
func TotalPrice(dailyRate decimal.Decimal, rentalDays int) decimal.Decimal {
	return dailyRate.Mul(decimal.NewFromInt(int64(rentalDays)))
}

// DueDate is the rental date moved forward by whole calendar days.
func DueDate(rentalDate time.Time, rentalDays int) time.Time {
	return rentalDate.AddDate(0, 0, rentalDays)
}

// DaysLate counts started days between the due date and the return, zero when
// the copy came back on time.
func DaysLate(dueDate, returnedAt time.Time) int64 {
	if !returnedAt.After(dueDate) {
		return 0
	}
	diff := returnedAt.Sub(dueDate)
	days := int64(diff / day)
	if diff%day != 0 {
		days++
	}
	return days
}

// LateFee charges perDay for every started day past the due date.
func LateFee(dueDate, returnedAt time.Time, perDay int64) decimal.Decimal {
	return decimal.NewFromInt(DaysLate(dueDate, returnedAt) * perDay)
}

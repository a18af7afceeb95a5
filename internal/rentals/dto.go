package rentals

import (
	"time"

	"github.com/google/uuid"

	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	"github.com/cinerent/cinerent-backend/pkg/pagination"
)

// CreateInput carries a rental request. UserID defaults to the actor.
type CreateInput struct {
	UserID     uuid.UUID
	MovieID    uuid.UUID
	RentalDays int
}

// ReturnInput updates a rental. ReturnedAt records the physical return;
// RentalStatus alone relabels the rental without returning it.
type ReturnInput struct {
	ReturnedAt   *time.Time
	RentalStatus *enums.RentalStatus
}

// Detail is a rental with its payment history.
type Detail struct {
	models.Rental
	Transactions []models.Transaction
}

// ListParams filters rental listings.
type ListParams struct {
	RentalStatus *enums.RentalStatus
	Title        string
	From         *time.Time
	To           *time.Time
	pagination.Params
}

// ListResult is one page of rentals, newest first.
type ListResult struct {
	Rentals    []models.Rental
	NextCursor string
}

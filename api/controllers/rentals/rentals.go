package rentals

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cinerent/cinerent-backend/api/middleware"
	"github.com/cinerent/cinerent-backend/api/responses"
	"github.com/cinerent/cinerent-backend/api/validators"
	internalrentals "github.com/cinerent/cinerent-backend/internal/rentals"
	"github.com/cinerent/cinerent-backend/pkg/auth"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/pagination"
)

// Create opens a pending rental and reserves one copy of the movie.
func Create(svc internalrentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		var req createRentalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalrentals.CreateInput{
			MovieID:    req.MovieID,
			RentalDays: req.RentalDays,
		}
		if req.UserID != nil {
			input.UserID = *req.UserID
		}

		rental, err := svc.Create(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toRentalResponse(*rental))
	}
}

// Get returns one rental with its payment history.
func Get(svc internalrentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		rentalID, err := parseRentalID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), actor, rentalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toDetailResponse(detail))
	}
}

// Return records a physical return or relabels a rental's status.
func Return(svc internalrentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		rentalID, err := parseRentalID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req returnRentalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalrentals.ReturnInput{ReturnedAt: req.ReturnedAt}
		if req.RentalStatus != nil {
			status, err := enums.ParseRentalStatus(*req.RentalStatus)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rental status"))
				return
			}
			input.RentalStatus = &status
		}

		rental, err := svc.Return(r.Context(), actor, rentalID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRentalResponse(*rental))
	}
}

// List pages through all rentals for admins.
func List(svc internalrentals.Service, logg *logger.Logger) http.HandlerFunc {
	return listHandler(svc, logg, internalrentals.Service.List)
}

// History pages through the caller's own rentals.
func History(svc internalrentals.Service, logg *logger.Logger) http.HandlerFunc {
	return listHandler(svc, logg, internalrentals.Service.ListHistory)
}

func Overdue(svc internalrentals.Service, logg *logger.Logger) http.HandlerFunc {
	return listHandler(svc, logg, internalrentals.Service.ListOverdue)
}

type listFunc func(internalrentals.Service, context.Context, auth.Actor, internalrentals.ListParams) (*internalrentals.ListResult, error)

func listHandler(svc internalrentals.Service, logg *logger.Logger, list listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := list(svc, r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toListResponse(result))
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, svc internalrentals.Service, logg *logger.Logger) (auth.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rentals service unavailable"))
		return auth.Actor{}, false
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return auth.Actor{}, false
	}
	return actor, true
}

func parseRentalID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "rentalId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "rental id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rental id")
	}
	return id, nil
}

func parseListParams(r *http.Request) (internalrentals.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return internalrentals.ListParams{}, err
	}
	query := r.URL.Query()
	params := internalrentals.ListParams{
		Title: strings.TrimSpace(query.Get("title")),
		Params: pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(query.Get("cursor")),
		},
	}

	if raw := strings.TrimSpace(query.Get("rental_status")); raw != "" {
		status, err := enums.ParseRentalStatus(raw)
		if err != nil {
			return internalrentals.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rental status")
		}
		params.RentalStatus = &status
	}
	if params.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return internalrentals.ListParams{}, err
	}
	if params.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return internalrentals.ListParams{}, err
	}
	return params, nil
}

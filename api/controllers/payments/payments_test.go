package payments

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cinerent/cinerent-backend/api/middleware"
	internalpayments "github.com/cinerent/cinerent-backend/internal/payments"
	"github.com/cinerent/cinerent-backend/pkg/auth"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/midtrans"
)

type stubPaymentService struct {
	payInput     internalpayments.PayInput
	cashRental   uuid.UUID
	lateFeeInput internalpayments.LateFeeInput
	err          error
}

func (s *stubPaymentService) ProcessPayment(_ context.Context, _ auth.Actor, input internalpayments.PayInput) (*midtrans.ChargeResponse, error) {
	s.payInput = input
	if s.err != nil {
		return nil, s.err
	}
	return &midtrans.ChargeResponse{
		StatusCode:        "201",
		OrderID:           "RENT-1",
		TransactionStatus: "pending",
		VANumbers:         []midtrans.VANumber{{Bank: string(input.Bank), VANumber: "8123"}},
	}, nil
}

func (s *stubPaymentService) ProcessCashPayment(_ context.Context, _ auth.Actor, rentalID uuid.UUID) (*models.Transaction, error) {
	s.cashRental = rentalID
	if s.err != nil {
		return nil, s.err
	}
	return &models.Transaction{
		ID:            uuid.New(),
		RentalID:      rentalID,
		OrderID:       "CASH-1",
		PaymentMethod: enums.PaymentMethodCash,
		PaymentType:   enums.PaymentTypeRental,
		GrossAmount:   decimal.NewFromInt(15000),
		Status:        enums.TransactionStatusPaid,
	}, nil
}

func (s *stubPaymentService) ProcessLateFeePayment(_ context.Context, _ auth.Actor, input internalpayments.LateFeeInput) (*models.Transaction, error) {
	s.lateFeeInput = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Transaction{
		ID:            uuid.New(),
		RentalID:      input.RentalID,
		OrderID:       "LATE-1",
		PaymentMethod: input.PaymentMethod,
		PaymentType:   enums.PaymentTypeLateFee,
		GrossAmount:   decimal.NewFromInt(10000),
		Status:        enums.TransactionStatusPaid,
	}, nil
}

func adminRequest(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewBufferString(body))
	return req.WithContext(middleware.WithActor(req.Context(), auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}))
}

func TestPayReturnsVirtualAccount(t *testing.T) {
	svc := &stubPaymentService{}
	rentalID := uuid.New()
	rec := httptest.NewRecorder()
	Pay(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPost, "/api/v1/rentals/pay", `{"rental_id":"`+rentalID.String()+`","bank":"bni"}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, rentalID, svc.payInput.RentalID)
	require.Equal(t, enums.BankBNI, svc.payInput.Bank)
	require.Contains(t, rec.Body.String(), `"va_number":"8123"`)
}

func TestPayRejectsUnknownBank(t *testing.T) {
	svc := &stubPaymentService{}
	rec := httptest.NewRecorder()
	Pay(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPost, "/api/v1/rentals/pay", `{"rental_id":"`+uuid.NewString()+`","bank":"mandiri"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, uuid.Nil, svc.payInput.RentalID)
}

func TestPayGatewayFailureIsServiceUnavailable(t *testing.T) {
	svc := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodeDependency, "payment gateway unavailable")}
	rec := httptest.NewRecorder()
	Pay(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPost, "/api/v1/rentals/pay", `{"rental_id":"`+uuid.NewString()+`","bank":"bca"}`))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "DEPENDENCY_ERROR")
}

func TestPayCash(t *testing.T) {
	svc := &stubPaymentService{}
	rentalID := uuid.New()
	rec := httptest.NewRecorder()
	PayCash(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPost, "/api/v1/rentals/pay/cash", `{"rental_id":"`+rentalID.String()+`"}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, rentalID, svc.cashRental)
	require.Contains(t, rec.Body.String(), `"status":"paid"`)
}

func TestPayCashConflict(t *testing.T) {
	svc := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodeConflict, "payment already processed")}
	rec := httptest.NewRecorder()
	PayCash(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPost, "/api/v1/rentals/pay/cash", `{"rental_id":"`+uuid.NewString()+`"}`))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestPayLateFee(t *testing.T) {
	svc := &stubPaymentService{}
	rentalID := uuid.New()
	userID := uuid.New()
	body := `{"rental_id":"` + rentalID.String() + `","user_id":"` + userID.String() + `","payment_method":"cash"}`
	rec := httptest.NewRecorder()
	PayLateFee(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPost, "/api/v1/rentals/late-fee/payment", body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, rentalID, svc.lateFeeInput.RentalID)
	require.Equal(t, userID, svc.lateFeeInput.UserID)
	require.Equal(t, enums.PaymentMethodCash, svc.lateFeeInput.PaymentMethod)
	require.Contains(t, rec.Body.String(), `"payment_type":"late_fee"`)
}

func TestPayLateFeeRejectsUnknownMethod(t *testing.T) {
	svc := &stubPaymentService{}
	body := `{"rental_id":"` + uuid.NewString() + `","payment_method":"crypto"}`
	rec := httptest.NewRecorder()
	PayLateFee(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPost, "/api/v1/rentals/late-fee/payment", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

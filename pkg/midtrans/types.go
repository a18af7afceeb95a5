package midtrans

// TransactionStatus is the transaction_status value the gateway reports.
type TransactionStatus string

const (
	StatusSettlement TransactionStatus = "settlement"
	StatusPending    TransactionStatus = "pending"
	StatusCancel     TransactionStatus = "cancel"
	StatusExpire     TransactionStatus = "expire"
	StatusFailure    TransactionStatus = "failure"
)

// IsTerminalFailure reports whether the status means the money will never arrive.
func (s TransactionStatus) IsTerminalFailure() bool {
	switch s {
	case StatusCancel, StatusExpire, StatusFailure:
		return true
	default:
		return false
	}
}

// ChargeRequest is the core API body for a bank_transfer charge.
type ChargeRequest struct {
	PaymentType        string             `json:"payment_type"`
	TransactionDetails TransactionDetails `json:"transaction_details"`
	ItemDetails        []ItemDetail       `json:"item_details,omitempty"`
	CustomerDetails    *CustomerDetails   `json:"customer_details,omitempty"`
	BankTransfer       BankTransfer       `json:"bank_transfer"`
}

type TransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type ItemDetail struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type CustomerDetails struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type BankTransfer struct {
	Bank string `json:"bank"`
}

// VANumber is one virtual account the renter can transfer to.
type VANumber struct {
	Bank     string `json:"bank"`
	VANumber string `json:"va_number"`
}

// ChargeResponse carries the charge instructions returned to the renter.
type ChargeResponse struct {
	StatusCode        string     `json:"status_code"`
	StatusMessage     string     `json:"status_message"`
	TransactionID     string     `json:"transaction_id,omitempty"`
	OrderID           string     `json:"order_id"`
	GrossAmount       string     `json:"gross_amount"`
	Currency          string     `json:"currency"`
	PaymentType       string     `json:"payment_type"`
	TransactionTime   string     `json:"transaction_time"`
	TransactionStatus string     `json:"transaction_status"`
	FraudStatus       string     `json:"fraud_status,omitempty"`
	VANumbers         []VANumber `json:"va_numbers"`
	ExpiryTime        string     `json:"expiry_time,omitempty"`
}

// Notification is the subset of the HTTP notification body used for reconciliation.
type Notification struct {
	OrderID           string `json:"order_id" validate:"required"`
	StatusCode        string `json:"status_code" validate:"required"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
	SignatureKey      string `json:"signature_key" validate:"required"`
	PaymentType       string `json:"payment_type,omitempty"`
	TransactionID     string `json:"transaction_id,omitempty"`
	FraudStatus       string `json:"fraud_status,omitempty"`
}

// errorBody is returned by the core API for rejected charges.
type errorBody struct {
	StatusCode    string   `json:"status_code"`
	StatusMessage string   `json:"status_message"`
	ID            string   `json:"id,omitempty"`
	ValidationMsg []string `json:"validation_messages,omitempty"`
}

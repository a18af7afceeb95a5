package enums

import "fmt"

// OutboxAggregateType maps to the outbox_aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateRental      OutboxAggregateType = "rental"
	AggregateTransaction OutboxAggregateType = "transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRental,
	AggregateTransaction,
}

// IsValid reports whether the value matches the canonical aggregate enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the outbox_event_type enum in Postgres.
type OutboxEventType string

const (
	EventRentalCreated   OutboxEventType = "rental_created"
	EventRentalReturned  OutboxEventType = "rental_returned"
	EventRentalCancelled OutboxEventType = "rental_cancelled"
	EventRentalOverdue   OutboxEventType = "rental_overdue"
	EventPaymentStarted  OutboxEventType = "payment_started"
	EventPaymentSettled  OutboxEventType = "payment_settled"
	EventPaymentFailed   OutboxEventType = "payment_failed"
	EventLateFeePaid     OutboxEventType = "late_fee_paid"
)

var validEventTypes = []OutboxEventType{
	EventRentalCreated,
	EventRentalReturned,
	EventRentalCancelled,
	EventRentalOverdue,
	EventPaymentStarted,
	EventPaymentSettled,
	EventPaymentFailed,
	EventLateFeePaid,
}

// IsValid reports whether the value matches the canonical event enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/pkg/db/dbtest"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
)

type rentalData struct {
	RentalID string `json:"rentalId"`
}

func TestNewEnvelopeValidatesEvent(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	valid := DomainEvent{
		EventType:     enums.EventRentalCreated,
		AggregateType: enums.AggregateRental,
		AggregateID:   uuid.New(),
		Data:          rentalData{RentalID: "r-1"},
	}

	env, err := NewEnvelope(valid, now)
	require.NoError(t, err)
	require.Equal(t, envelopeVersion, env.Version)
	require.Equal(t, now, env.OccurredAt)
	require.NotEmpty(t, env.EventID)
	require.JSONEq(t, `{"rentalId":"r-1"}`, string(env.Data))

	broken := []func(e *DomainEvent){
		func(e *DomainEvent) { e.EventType = "rental_teleported" },
		func(e *DomainEvent) { e.AggregateType = "cinema" },
		func(e *DomainEvent) { e.AggregateID = uuid.Nil },
		func(e *DomainEvent) { e.Data = nil },
	}
	for _, mutate := range broken {
		event := valid
		mutate(&event)
		_, err := NewEnvelope(event, now)
		require.Error(t, err)
	}
}

func TestEmitQueuesRowInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	rentalID := uuid.New()
	ctx := context.Background()

	require.Error(t, svc.Emit(ctx, nil, DomainEvent{}))

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventRentalCreated,
			AggregateType: enums.AggregateRental,
			AggregateID:   rentalID,
			Data:          rentalData{RentalID: rentalID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, rentalID, rows[0].AggregateID)
	require.Nil(t, rows[0].PublishedAt)

	env, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"rentalId":"`+rentalID.String()+`"}`, string(env.Data))
}

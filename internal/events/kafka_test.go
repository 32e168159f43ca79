package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisherSendsJSONKeyedByNumber(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got Event
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Type != InvoiceCreated || got.Number != "SAL-2026-001" {
			return errors.New("unexpected payload")
		}
		if !got.Total.Equal(decimal.RequireFromString("12980")) {
			return errors.New("unexpected total")
		}
		if got.ID == "" || got.OccurredAt.IsZero() {
			return errors.New("event not stamped")
		}
		return nil
	})
	pub := NewKafkaPublisherWithProducer(producer, "partsdesk.invoices", nil)

	err := pub.Publish(context.Background(), Event{
		Type:        InvoiceCreated,
		InvoiceID:   7,
		Number:      "SAL-2026-001",
		InvoiceType: "SALE",
		Status:      "DRAFT",
		Total:       decimal.RequireFromString("12980"),
	})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherReturnsSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	pub := NewKafkaPublisherWithProducer(producer, "partsdesk.invoices", nil)

	err := pub.Publish(context.Background(), Event{Type: InvoicePaid, Number: "PUR-2026-004"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherHonoursCancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	pub := NewKafkaPublisherWithProducer(producer, "t", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, pub.Publish(ctx, Event{Type: InvoiceDeleted}), context.Canceled)
	require.NoError(t, pub.Close())
}

func TestNopPublisher(t *testing.T) {
	require.NoError(t, NopPublisher{}.Publish(context.Background(), Event{}))
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cqrs-es/cqrs"
	"github.com/example/cqrs-es/internal/banktest"
)

type recordingWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newTestPublisher(w writer) *Publisher[banktest.Event] {
	return &Publisher[banktest.Event]{
		writer:        w,
		aggregateType: banktest.AggregateType,
		logger:        slog.Default(),
	}
}

func TestPublisherDispatchKeysByAggregate(t *testing.T) {
	recorder := &recordingWriter{}
	publisher := newTestPublisher(recorder)

	publisher.Dispatch(context.Background(), "acct-1", []cqrs.EventEnvelope[banktest.Event]{
		{
			AggregateID: "acct-1",
			Sequence:    1,
			Payload:     &banktest.AccountOpened{AccountID: "acct-1"},
			Metadata:    map[string]string{"request_id": "r-1"},
		},
		{
			AggregateID: "acct-1",
			Sequence:    2,
			Payload:     &banktest.MoneyDeposited{Amount: 200, Balance: 200},
		},
	})

	require.Len(t, recorder.messages, 2)
	for _, msg := range recorder.messages {
		assert.Equal(t, []byte("acct-1"), msg.Key)
	}

	var published message
	require.NoError(t, json.Unmarshal(recorder.messages[1].Value, &published))
	assert.NotEmpty(t, published.MessageID)
	assert.Equal(t, banktest.AggregateType, published.AggregateType)
	assert.Equal(t, "acct-1", published.AggregateID)
	assert.Equal(t, uint64(2), published.Sequence)
	assert.Equal(t, banktest.EventMoneyDeposited, published.EventType)
	assert.Equal(t, banktest.EventVersion, published.EventVersion)
}

func TestPublisherDispatchNoEvents(t *testing.T) {
	recorder := &recordingWriter{}
	publisher := newTestPublisher(recorder)

	publisher.Dispatch(context.Background(), "acct-1", nil)
	assert.Empty(t, recorder.messages)
}

func TestPublisherRoutesWriteFailures(t *testing.T) {
	cause := errors.New("broker unavailable")
	recorder := &recordingWriter{err: cause}

	var handled error
	publisher := newTestPublisher(recorder).WithErrorHandler(func(err error) { handled = err })

	publisher.Dispatch(context.Background(), "acct-1", []cqrs.EventEnvelope[banktest.Event]{{
		AggregateID: "acct-1",
		Sequence:    1,
		Payload:     &banktest.AccountOpened{AccountID: "acct-1"},
	}})

	require.Error(t, handled)
	assert.ErrorIs(t, handled, cause)
}

func TestPublisherClose(t *testing.T) {
	recorder := &recordingWriter{}
	publisher := newTestPublisher(recorder)

	require.NoError(t, publisher.Close())
	assert.True(t, recorder.closed)
}

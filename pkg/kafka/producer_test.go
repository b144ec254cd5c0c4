package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type stubWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	require.Error(t, err)
}

func TestPublishEncodesValues(t *testing.T) {
	w := &stubWriter{}
	p := newProducer(w, "gzip")

	require.NoError(t, p.Publish(context.Background(), "preds", []byte("AAPL"), map[string]string{"label": "Hold"}))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", "plain"))
	require.NoError(t, p.PublishBatch(context.Background(), "preds", nil))

	require.Len(t, w.msgs, 2)
	require.Equal(t, "preds", w.msgs[0].Topic)
	require.Equal(t, []byte("AAPL"), w.msgs[0].Key)
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	require.Equal(t, "Hold", got["label"])
	require.Equal(t, "plain", string(w.msgs[1].Value))
	require.Nil(t, w.msgs[1].Key)

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&stubWriter{err: boom}, "gzip")
	err := p.Publish(context.Background(), "preds", nil, []byte("x"))
	require.ErrorIs(t, err, boom)
}

func TestPublishRejectsUnencodableValue(t *testing.T) {
	p := newProducer(&stubWriter{}, "gzip")
	err := p.Publish(context.Background(), "preds", nil, make(chan int))
	require.Error(t, err)
}

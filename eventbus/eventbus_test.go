package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapplink-labs/ton-wallet-gateway/config"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{topic: "ton.events", writer: w}

	err := p.Publish(context.Background(), "0:abcd", map[string]string{"status": "confirmed"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ton.events", msg.Topic)
	assert.Equal(t, []byte("0:abcd"), msg.Key)
	var body map[string]string
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "confirmed", body["status"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	cause := errors.New("broker unavailable")
	p := &KafkaPublisher{topic: "ton.events", writer: &recordingWriter{err: cause}}

	err := p.Publish(context.Background(), "k", struct{}{})
	assert.ErrorIs(t, err, cause)
}

func TestNewPublisher(t *testing.T) {
	p, err := NewPublisher(config.KafkaConfig{})
	require.NoError(t, err)
	assert.Equal(t, Noop, p)
	assert.NoError(t, p.Publish(context.Background(), "k", nil))

	p, err = NewPublisher(config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.IsType(t, &KafkaPublisher{}, p)
	assert.NoError(t, p.Close())

	_, err = NewKafkaPublisher(config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	assert.Error(t, err)
}

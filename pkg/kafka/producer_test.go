package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func testProducer(w *fakeWriter) *Producer {
	initProducerMetricsOnce()
	return &Producer{
		writer: w,
		comp:   "none",
		now:    func() time.Time { return time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC) },
	}
}

func TestPublishEncodesJSONAndStampsTrace(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(w)

	err := p.Publish(context.Background(), "events", []byte("2024-03-04"), map[string]int{"n": 1})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "events", m.Topic)
	assert.Equal(t, []byte("2024-03-04"), m.Key)
	assert.JSONEq(t, `{"n":1}`, string(m.Value))
	assert.NotEmpty(t, headerValue(m, TraceHeader))
}

func TestPublishKeepsIncomingTrace(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(w)
	ctx := context.WithValue(context.Background(), ctxTraceID, "abc")

	require.NoError(t, p.PublishMessage(ctx, "logs", "raw"))
	assert.Equal(t, "abc", headerValue(w.msgs[0], TraceHeader))
	assert.Equal(t, "raw", string(w.msgs[0].Value))
}

func TestPublishBatchSharesTrace(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(w)

	err := p.PublishBatch(context.Background(), "events", []Message{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, headerValue(w.msgs[0], TraceHeader), headerValue(w.msgs[1], TraceHeader))
	assert.NoError(t, p.PublishBatch(context.Background(), "events", nil))
}

func TestPublishWrapsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := testProducer(w)

	err := p.Publish(context.Background(), "events", nil, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, w.err)
}

func TestProducerConfigValidate(t *testing.T) {
	cfg := defaultProducerConfig()
	assert.Error(t, cfg.validate())

	cfg.Brokers = []string{"localhost:9092"}
	assert.NoError(t, cfg.validate())

	bad := cfg
	bad.Compression = "brotli"
	assert.Error(t, bad.validate())

	bad = cfg
	bad.RequiredAcks = 2
	assert.Error(t, bad.validate())
}

func TestNewProducerRejectsMissingBrokers(t *testing.T) {
	_, err := NewProducer(WithCompression("gzip"))
	assert.Error(t, err)
}

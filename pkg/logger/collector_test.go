package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	topics  []string
	batches []LogBatch
	err     error
}

func (p *recordingPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.(LogBatch))
	return p.err
}

func (p *recordingPublisher) all() []LogBatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LogBatch(nil), p.batches...)
}

func TestCollectorFoldsRepeats(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	fields := map[string]interface{}{"phase": "trading", "trading_date": "2024-03-04"}
	for i := 0; i < 3; i++ {
		c.AddLog("warn", "publish retry", fields, "usecase/phase_service.go:10")
	}
	c.AddLog("error", "replay failed", nil, "usecase/day_engine.go:20")
	c.Close()

	batches := pub.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Entries, 2)
	counts := map[string]int{}
	for _, e := range batches[0].Entries {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, map[string]int{"publish retry": 3, "replay failed": 1}, counts)
	assert.Equal(t, []string{"logs"}, pub.topics)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer c.Close()

	c.AddLog("warn", "a", nil, "x.go:1")
	c.AddLog("warn", "b", nil, "x.go:2")

	require.Eventually(t, func() bool { return len(pub.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, pub.all()[0].Entries, 2)
}

func TestCollectorIgnoresLogsAfterClose(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Topic: "logs", Publisher: pub})
	c.Close()
	c.Close()

	assert.NotPanics(t, func() { c.AddLog("error", "late", nil, "x.go:3") })
	assert.Empty(t, pub.all())
}

func TestEntryKeyIgnoresFieldOrder(t *testing.T) {
	a := entryKey("warn", "m", map[string]interface{}{"a": 1, "b": "x"}, "c")
	b := entryKey("warn", "m", map[string]interface{}{"b": "x", "a": 1}, "c")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, entryKey("warn", "m", map[string]interface{}{"a": 2, "b": "x"}, "c"))
}

func TestLoggerWarnFeedsCollector(t *testing.T) {
	pub := &recordingPublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	l.Warn("slow bar", String("symbol", "ES"))
	l.Info("not collected")
	l.RemoveCollector()

	batches := pub.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Entries, 1)
	assert.Equal(t, "warn", batches[0].Entries[0].Level)
	assert.Equal(t, "ES", batches[0].Entries[0].Fields["symbol"])
}

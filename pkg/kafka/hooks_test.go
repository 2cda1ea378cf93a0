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

type recordingHook struct {
	name  string
	calls *[]string
	fail  error
	boom  bool
}

func (h recordingHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	*h.calls = append(*h.calls, "before:"+h.name)
	if h.boom {
		panic("boom")
	}
	return ctx, km, append(data, h.name...), h.fail
}

func (h recordingHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {
	*h.calls = append(*h.calls, "after:"+h.name)
}

func (h recordingHook) OnError(context.Context, string, kafka.Message, []byte, error) {
	*h.calls = append(*h.calls, "error:"+h.name)
}

func TestHookChainOrder(t *testing.T) {
	var calls []string
	chain := NewHookChain(recordingHook{name: "a", calls: &calls}, nil, recordingHook{name: "b", calls: &calls})

	_, _, data, err := chain.BeforeHandle(context.Background(), "bars", kafka.Message{}, []byte(">"))
	require.NoError(t, err)
	assert.Equal(t, ">ab", string(data), "payload threads through the hooks")

	chain.AfterHandle(context.Background(), "bars", kafka.Message{}, data, nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, calls)
}

func TestHookChainStopsOnError(t *testing.T) {
	var calls []string
	bad := errors.New("rejected")
	chain := NewHookChain(recordingHook{name: "a", calls: &calls, fail: bad}, recordingHook{name: "b", calls: &calls})

	_, _, _, err := chain.BeforeHandle(context.Background(), "bars", kafka.Message{}, nil)
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, []string{"before:a", "error:a", "error:b"}, calls)
}

func TestHookChainRecoversPanics(t *testing.T) {
	var calls []string
	chain := NewHookChain(recordingHook{name: "a", calls: &calls, boom: true})

	_, _, _, err := chain.BeforeHandle(context.Background(), "bars", kafka.Message{}, nil)
	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "ERR_PANIC", hookErr.Code)
}

func TestTraceHook(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := TraceHook{}.BeforeHandle(context.Background(), "bars", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))
	at, ok := StartTime(ctx)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), at, time.Second)

	ctx, _, _, _ = TraceHook{}.BeforeHandle(context.Background(), "bars", kafka.Message{}, nil)
	assert.Empty(t, TraceID(ctx))
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(50*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

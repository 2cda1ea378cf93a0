package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOptions(t *testing.T) {
	opts := buildOptions(ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "tradeflow",
		User:         "u",
		Password:     "p",
		DialTimeout:  time.Second,
		MaxExecTime:  90 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
		Compression:  true,
	})

	assert.Equal(t, []string{"ch:9000"}, opts.Addr)
	assert.Equal(t, "tradeflow", opts.Auth.Database)
	assert.Equal(t, ch.Native, opts.Protocol)
	require.NotNil(t, opts.Compression)
	assert.Equal(t, ch.CompressionLZ4, opts.Compression.Method)
	assert.Equal(t, 90, opts.Settings["max_execution_time"])
	assert.Equal(t, 1, opts.Settings["async_insert"])
	assert.Equal(t, 1, opts.Settings["wait_for_async_insert"])
}

func TestBuildOptionsHTTP(t *testing.T) {
	opts := buildOptions(ClientConfig{Host: "ch", Port: 8123, UseHTTP: true})
	assert.Equal(t, ch.HTTP, opts.Protocol)
	assert.Nil(t, opts.Compression)
	assert.Empty(t, opts.Settings)
}

func TestNewClientNeedsHost(t *testing.T) {
	_, err := NewClient(WithPort(9000))
	assert.Error(t, err)
}

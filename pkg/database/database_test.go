package database

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/logger"
)

func TestConnectBackoff(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		base := connectBaseWait << attempt
		lo := time.Duration(float64(base) * (1 - jitterFraction))
		hi := time.Duration(float64(base) * (1 + jitterFraction))
		for i := 0; i < 20; i++ {
			d := connectBackoff(attempt)
			assert.GreaterOrEqual(t, d, lo)
			assert.LessOrEqual(t, d, hi)
		}
	}
}

func TestNewPostgresPool_InvalidDSN(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), DefaultPostgresConfig("::not a dsn::"), logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse postgres config")
}

func TestDefaultPostgresConfig_ReadOnly(t *testing.T) {
	cfg := DefaultPostgresConfig("postgres://u:p@localhost:5432/content")
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, int32(10), cfg.MaxConns)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), DefaultRedisConfig(mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.Equal(t, "v", client.Get(context.Background(), "k").Val())
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), DefaultRedisConfig(addr))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

func TestTraceQuery_RecordsSpanAndSlowQuery(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	SetSlowQueryLogging(time.Nanosecond, logger.NewWithWriter("test", "info", &buf))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "ListContent", "SELECT 1")
	time.Sleep(time.Millisecond)
	end(errors.New("boom"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.ListContent", spans[0].Name)
	assert.Equal(t, "Error", spans[0].Status.Code.String())
	assert.Contains(t, buf.String(), "slow query detected")
}

func TestNewMockPool(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	var _ DBTX = mock
	assert.NoError(t, mock.ExpectationsWereMet())
}

package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/pkg/common/logger"
)

func TestInitTelemetryDisabled(t *testing.T) {
	ctx := context.Background()

	tel, err := InitTelemetry(ctx, logger.Noop(), Config{ServiceName: "scanguard"})
	require.NoError(t, err)

	ctx, span := tel.Tracer("test").Start(ctx, "op")
	defer span.End()

	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
	assert.Equal(t, "00000000000000000000000000000000", GetTraceID(ctx))
	assert.NoError(t, tel.Shutdown(ctx))
}

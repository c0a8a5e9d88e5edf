package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer_ExportsOnShutdown(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var out bytes.Buffer
	shutdown, err := InitTracer(TracerOptions{
		Service: "optimus",
		Version: "1.2.3",
		Env:     "test",
		Writer:  &out,
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "transform")
	span.End()

	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, out.String(), `"Name":"transform"`)
	assert.Contains(t, out.String(), "optimus")
}

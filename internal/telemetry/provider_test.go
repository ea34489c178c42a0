package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
)

func TestInitProviders_InstallsGlobalProvidersAndShutsDownCleanly(t *testing.T) {
	shutdown := InitProviders(context.Background(), "torus-test")
	require.NotNil(t, shutdown)

	tracer := otel.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabledExportsSpans(t *testing.T) {
	var buf strings.Builder
	shutdown, err := Setup(context.Background(), Config{
		Enabled:        true,
		ServiceVersion: "test-version",
		Writer:         &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry_test").Start(context.Background(), "unit-test-span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "unit-test-span")
}

func TestConfigFromEnvDefaultsDisabled(t *testing.T) {
	t.Setenv("CLAUDE_CODE_TRACE", "")
	cfg := ConfigFromEnv("1.0.0")
	assert.False(t, cfg.Enabled)

	t.Setenv("CLAUDE_CODE_TRACE", "1")
	cfg = ConfigFromEnv("1.0.0")
	assert.True(t, cfg.Enabled)
}

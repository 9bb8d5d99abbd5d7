package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/imageoptimizer/internal/config"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), ServiceAPI, config.TracingConfig{Exporter: "none"}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracingStdout(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), ServiceWorker, config.TracingConfig{Exporter: "stdout"}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracingRejectsBadExporters(t *testing.T) {
	_, err := SetupTracing(context.Background(), ServiceAPI, config.TracingConfig{Exporter: "otlp"}, nil)
	assert.Error(t, err)

	_, err = SetupTracing(context.Background(), ServiceAPI, config.TracingConfig{Exporter: "jaeger"}, nil)
	assert.Error(t, err)
}

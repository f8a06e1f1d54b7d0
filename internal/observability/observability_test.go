package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/internal/config"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), config.OTelConfig{Enabled: false})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Meter)
}

func TestInit_DisabledShutdownIsNoop(t *testing.T) {
	p, err := Init(context.Background(), config.OTelConfig{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_StdoutExporter(t *testing.T) {
	p, err := Init(context.Background(), config.OTelConfig{Enabled: true, UseStdout: true, ServiceName: "agentcore-test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())
	require.NotNil(t, p.TracerProvider)
}

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	p, err := Init(context.Background(), config.OTelConfig{Enabled: false})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	require.NoError(t, err)
	require.NotNil(t, m.EventsWritten)
	require.NotNil(t, m.TaskDuration)
	require.NotNil(t, m.WatchersActive)
	require.NotNil(t, m.RegistryGCEvicted)
}

func TestStartSpan_ReturnsNonNilSpan(t *testing.T) {
	p, err := Init(context.Background(), config.OTelConfig{Enabled: false})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	_, span := StartSpan(context.Background(), p.Tracer, "test.span", AttrMessageID.String("m1"))
	require.NotNil(t, span)
	span.End()
}

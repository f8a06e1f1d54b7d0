package gateway

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/agentcore/internal/bus"
	"github.com/agentcore/agentcore/internal/config"
	"github.com/agentcore/agentcore/internal/doctor"
	"github.com/agentcore/agentcore/internal/events"
	"github.com/agentcore/agentcore/internal/executor"
	"github.com/agentcore/agentcore/internal/observability"
	"github.com/agentcore/agentcore/internal/registry"
	"github.com/agentcore/agentcore/internal/writer"
)

// Deps bundles every collaborator the gateway's handlers call into.
type Deps struct {
	Store    *events.Store
	Writer   *writer.Writer
	Registry *registry.Registry
	Bus      *bus.Bus // optional; nil disables the notify-driven wakeup and the create handler publishes nothing

	// Agent builds the Invocation run for a newly created message. Defaults
	// to agentapi.Echo(prompt) if nil.
	Agent func(prompt string) executor.Invocation

	// Version is reported by the healthz endpoint.
	Version string

	// DoctorDeps feeds internal/doctor's checks for GET /healthz. Zero value
	// is fine; every check degrades to SKIP.
	DoctorDeps doctor.Deps

	// EnableWS mounts GET /ws, an optional websocket transport alongside SSE
	// that shares the same Watcher abstraction (see ws.go).
	EnableWS bool

	// Tracer and Metrics are optional; when set, the stream handler wraps
	// each SSE connection in a server span and records
	// agentcore.sse.duration, and the Watcher it drives records
	// agentcore.watcher.active.
	Tracer  trace.Tracer
	Metrics *observability.Metrics
}

// handlers holds the per-request-independent state shared by every route.
type handlers struct {
	deps   Deps
	cfg    config.Config
	logger *slog.Logger
}

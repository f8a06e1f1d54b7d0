// Command agentcored is the agentcore daemon: it opens the event store,
// wires the robust writer, task registry, and sweep scheduler together, and
// serves the gateway's HTTP surface (create/stream/replay/active/healthz).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/agentcore/agentcore/internal/agentapi"
	"github.com/agentcore/agentcore/internal/audit"
	"github.com/agentcore/agentcore/internal/bus"
	"github.com/agentcore/agentcore/internal/config"
	"github.com/agentcore/agentcore/internal/doctor"
	"github.com/agentcore/agentcore/internal/events"
	"github.com/agentcore/agentcore/internal/gateway"
	"github.com/agentcore/agentcore/internal/observability"
	"github.com/agentcore/agentcore/internal/registry"
	"github.com/agentcore/agentcore/internal/schemacheck"
	"github.com/agentcore/agentcore/internal/sweep"
	"github.com/agentcore/agentcore/internal/telemetry"
	"github.com/agentcore/agentcore/internal/writer"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=...".
var Version = "v0-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s                 Start the daemon
  %s doctor [-json]  Run diagnostic checks against the configured home dir

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  AGENTCORE_HOME                Data directory (default: ~/.agentcore)
  AGENTCORE_BIND_ADDR           Gateway listen address
  AGENTCORE_LOG_LEVEL           debug|info|warn|error
  AGENTCORE_DB_PATH             SQLite event store path
  AGENTCORE_POLL_INTERVAL_MS    Stream Watcher poll cadence
  AGENTCORE_HEARTBEAT_INTERVAL_S
  AGENTCORE_WATCHER_MAX_WAIT_S
  AGENTCORE_REGISTRY_GC_MAX_AGE_H
  AGENTCORE_MESSAGE_EVENTS_TTL_S
`)
}

func main() {
	loadDotEnv(".env")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "doctor":
			os.Exit(runDoctorCommand(ctx, args[1:]))
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	if err := audit.Init(cfg.HomeDir); err != nil {
		fatalStartup(nil, "E_AUDIT_INIT", err)
	}
	defer audit.Close()

	logger, logCloser, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer logCloser.Close()

	logger.Info("startup phase", "phase", "config_loaded", "config_fingerprint", cfg.Fingerprint())

	otelProvider, err := observability.Init(ctx, cfg.OTel)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelProvider.Shutdown(shutdownCtx)
	}()

	metrics, err := observability.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_METRICS_INIT", err)
	}

	store, err := events.Open(cfg.DBPath)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer store.Close()
	logger.Info("startup phase", "phase", "store_opened", "db_path", cfg.DBPath)

	validator, err := schemacheck.NewV2Validator()
	if err != nil {
		fatalStartup(logger, "E_SCHEMA_LOAD", err)
	}

	w := writer.New(store, cfg.RetrySchedule(), cfg.WriterFallbackCapacity, logger)
	w.SetValidator(validator)

	eventBus := bus.NewWithLogger(logger)

	reg := registry.New(store, w, eventBus, time.Duration(cfg.HeartbeatIntervalS)*time.Second, logger)
	reg.SetObservability(otelProvider.Tracer, metrics)

	sweeper := sweep.New(sweep.Config{
		Registry:  reg,
		Store:     store,
		Writer:    w,
		Logger:    logger,
		GCMaxAge:  time.Duration(cfg.RegistryGCMaxAgeH) * time.Hour,
		EventsTTL: time.Duration(cfg.MessageEventsTTLS) * time.Second,
	})
	if err := sweeper.Start(ctx); err != nil {
		fatalStartup(logger, "E_SWEEP_START", err)
	}
	defer sweeper.Stop()
	logger.Info("startup phase", "phase", "sweep_started")

	gw := gateway.New(gateway.Deps{
		Store:    store,
		Writer:   w,
		Registry: reg,
		Bus:      eventBus,
		Agent:    agentapi.Echo,
		Version:  Version,
		DoctorDeps: doctor.Deps{
			Config:   &cfg,
			Writer:   w,
			Registry: reg,
		},
		EnableWS: true,
		Tracer:   otelProvider.Tracer,
		Metrics:  metrics,
	}, cfg, logger)

	confWatcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := confWatcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start; hot-reload disabled", "error", err)
	} else {
		go func() {
			for ev := range confWatcher.Events() {
				switch filepath.Base(ev.Path) {
				case "config.yaml":
					reloaded, err := config.Load()
					if err != nil {
						logger.Error("config reload failed", "path", ev.Path, "error", err)
						continue
					}
					gw.SetCORS(reloaded.CORS)
					logger.Info("config reloaded", "path", ev.Path, "cors_enabled", reloaded.CORS.Enabled)
				}
			}
		}()
	}

	server := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: gw.Handler(),
	}
	serverErr := make(chan error, 1)

	ln, err := listenReusable(ctx, cfg.BindAddr)
	if err != nil {
		if isAddrInUse(err) {
			hint := portOccupantHint(cfg.BindAddr)
			fatalStartup(logger, "E_GATEWAY_LISTENER_BIND", fmt.Errorf("%w\n\n  %s", err, hint))
		}
		fatalStartup(logger, "E_GATEWAY_LISTENER_BIND", err)
	}
	logger.Info("startup phase", "phase", "gateway_listener_bound", "addr", cfg.BindAddr)

	go func() {
		logger.Info("gateway listening", "addr", cfg.BindAddr, "ws_enabled", true)
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("gateway server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	drainTimeout := time.Duration(cfg.DrainTimeoutSeconds) * time.Second
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	reg.DrainAll(drainTimeout)

	logger.Info("shutdown complete")
}

func listenReusable(ctx context.Context, addr string) (net.Listener, error) {
	lc := &net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
		},
	}
	return lc.Listen(ctx, "tcp", addr)
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	audit.Record("fatal", "runtime.startup", reasonCode, message)

	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"runtime","trace_id":"-","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

func isAddrInUse(err error) bool {
	if opErr, ok := err.(*net.OpError); ok {
		if sysErr, ok := opErr.Err.(*os.SyscallError); ok {
			return sysErr.Err == syscall.EADDRINUSE
		}
	}
	return strings.Contains(err.Error(), "address already in use")
}

func portOccupantHint(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("Another process is using %s. Stop it first or change bind_addr in config.yaml.", addr)
	}
	out, err := exec.Command("lsof", "-ti", ":"+port).Output()
	if err == nil && strings.TrimSpace(string(out)) != "" {
		pids := strings.TrimSpace(string(out))
		return fmt.Sprintf("Port %s is occupied by PID %s. Kill it with: kill %s", port, pids, pids)
	}
	return fmt.Sprintf("Port %s is already in use. Stop the existing process or change bind_addr in config.yaml.", port)
}

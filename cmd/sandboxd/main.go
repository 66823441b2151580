// Command sandboxd is the userspace supervisor daemon substituting the
// out-of-scope kernel module + /dev/libcallsandbox device (spec.md
// §1, §4.4): it hosts one engine.Registry, a notifyproto.Server for
// observe(pid, id) calls, a notifyproto.ControlServer for load/unload
// requests, and a Prometheus /metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/talfig/libcallsandbox/engine"
	"github.com/talfig/libcallsandbox/engine/audit"
	"github.com/talfig/libcallsandbox/notifyproto"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("sandboxd: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("sandboxd", flag.ContinueOnError)
	notifySocket := fs.String("notify-socket", notifyproto.DefaultSocketPath, "notify socket path")
	controlSocket := fs.String("control-socket", notifyproto.DefaultControlSocketPath, "control (load/unload) socket path")
	metricsAddr := fs.String("metrics-addr", ":9090", "Prometheus /metrics listen address")
	auditDriver := fs.String("audit-driver", "null", "audit trail backend: null, sqlite, or mysql")
	auditDSN := fs.String("audit-db", "", "sqlite file path or mysql DSN for the audit trail")
	if err := fs.Parse(args); err != nil {
		return err
	}

	trail, err := newTrail(*auditDriver, *auditDSN)
	if err != nil {
		return fmt.Errorf("building audit trail: %w", err)
	}
	defer func() { _ = trail.Close() }()

	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry)
	tracer := engine.NewTracer(otel.Tracer("libcallsandbox/sandboxd"))

	reg := engine.NewRegistry(
		engine.WithMetrics(metrics),
		engine.WithTracer(tracer),
		engine.WithTrail(trail),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	notifySrv := notifyproto.NewServer(*notifySocket, reg, nil)
	controlSrv := notifyproto.NewControlServer(*controlSocket, reg)

	errCh := make(chan error, 3)
	go func() { errCh <- notifySrv.ListenAndServe(ctx) }()
	go func() { errCh <- controlSrv.ListenAndServe(ctx) }()
	go func() { errCh <- serveMetrics(ctx, *metricsAddr, registry) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		cancel()
		return err
	}
}

func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func newTrail(driver, dsn string) (audit.Trail, error) {
	switch driver {
	case "sqlite":
		return audit.NewSQLiteTrail(dsn)
	case "mysql":
		return audit.NewMySQLTrail(dsn)
	case "null", "":
		return audit.NewNullTrail(), nil
	default:
		return nil, fmt.Errorf("unknown audit driver %q", driver)
	}
}

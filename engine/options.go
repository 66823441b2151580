package engine

import (
	"github.com/talfig/libcallsandbox/emit"
	"github.com/talfig/libcallsandbox/engine/audit"
)

// Option configures a Registry at construction time, following the
// functional-options pattern of graph.Option in the pack's reference
// engine implementation.
type Option func(*registryConfig)

type registryConfig struct {
	killer  Killer
	emitter emit.Emitter
	metrics *Metrics
	tracer  *Tracer
	trail   audit.Trail
}

// WithKiller overrides the default OSKiller, primarily for tests that
// need to observe which pid was killed without actually signaling it.
func WithKiller(k Killer) Option {
	return func(c *registryConfig) { c.killer = k }
}

// WithEmitter attaches an emit.Emitter that receives one event per
// policy load, accepted observation, violation, and unload (§7
// "user-visible behavior"), plus start-set fallbacks and failed kills
// or audit appends.
func WithEmitter(e emit.Emitter) Option {
	return func(c *registryConfig) { c.emitter = e }
}

// WithMetrics attaches Prometheus counters/gauges/histograms.
func WithMetrics(m *Metrics) Option {
	return func(c *registryConfig) { c.metrics = m }
}

// WithTracer attaches an OpenTelemetry tracer that emits one span per
// Observe call.
func WithTracer(t *Tracer) Option {
	return func(c *registryConfig) { c.tracer = t }
}

// WithTrail attaches a durable audit.Trail. Appends are best-effort
// (§7 "auditing is best-effort"): a failing Append is itself reported
// through the emitter, never returned to the caller of Load/Observe/
// Unload.
func WithTrail(t audit.Trail) Option {
	return func(c *registryConfig) { c.trail = t }
}

package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/talfig/libcallsandbox/emit"
	"github.com/talfig/libcallsandbox/engine/audit"
	"github.com/talfig/libcallsandbox/policy"
	"go.opentelemetry.io/otel/trace"
)

// Registry is the enforcement engine's entire runtime state: one
// Automaton per supervised pid, behind a single mutex that also guards
// every automaton's frontier. Load decodes and builds the new automaton
// before taking the lock and holds it only to install the entry; Observe
// holds it while advancing the frontier; Unload holds it while removing
// the entry. There is no per-pid lock and no suspension: every operation
// runs to completion synchronously.
type Registry struct {
	mu       sync.Mutex
	automata map[uint32]*Automaton

	killer  Killer
	emitter emit.Emitter
	metrics *Metrics
	tracer  *Tracer
	trail   audit.Trail
}

// NewRegistry builds an empty Registry. Defaults: OSKiller, a
// NullEmitter, a NullTrail, and no metrics/tracer.
func NewRegistry(opts ...Option) *Registry {
	cfg := registryConfig{
		killer:  OSKiller{},
		emitter: emit.NewNullEmitter(),
		trail:   audit.NewNullTrail(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		automata: make(map[uint32]*Automaton),
		killer:   cfg.killer,
		emitter:  cfg.emitter,
		metrics:  cfg.metrics,
		tracer:   cfg.tracer,
		trail:    cfg.trail,
	}
}

// audit appends rec to the registry's trail, reporting (but not
// propagating) a failure: the hot path never blocks on, or fails
// because of, audit persistence.
func (r *Registry) audit(ctx context.Context, rec audit.Record) {
	rec.Time = time.Now()
	if err := r.trail.Append(ctx, rec); err != nil {
		r.emitter.Emit(emit.Event{PID: rec.PID, Msg: "audit_append_failed", Meta: map[string]any{"error": err.Error()}})
	}
}

// Load decodes data as a policy blob (§6.2) and installs it as pid's
// active policy, replacing and discarding any automaton previously
// loaded for pid (§8 "Replacement": no bit of the old frontier survives,
// since the old *Automaton is simply dropped and the new one starts
// from its own freshly seeded and epsilon-closed frontier).
//
// Returns ErrFault if data is truncated or otherwise unreadable,
// ErrInvalid if its header or edges violate an invariant, and ErrOOM if
// the frontier/scratch bitsets for the new automaton cannot be
// allocated. On any error the registry is left exactly as it was.
func (r *Registry) Load(ctx context.Context, pid uint32, data []byte) (err error) {
	start := time.Now()
	if r.tracer != nil {
		_, span := r.tracer.loadSpan(ctx, pid)
		defer span.End()
	}

	blob, decodeErr := policy.DecodeBlob(data)
	if decodeErr != nil {
		if errors.Is(decodeErr, policy.ErrTruncated) {
			return ErrFault
		}
		return ErrInvalid
	}

	a, allocErr := r.buildAutomaton(blob)
	if allocErr != nil {
		return allocErr
	}

	r.mu.Lock()
	r.automata[pid] = a
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.loads.Inc()
		r.metrics.loadDuration.Observe(time.Since(start).Seconds())
	}
	r.emitter.Emit(emit.Event{PID: pid, Msg: "policy_loaded"})
	r.audit(ctx, audit.Record{PID: pid, Msg: "policy_loaded", ObservedID: -1})
	if a.UsedStartFallback {
		r.emitter.Emit(emit.Event{PID: pid, Msg: "start_set_fallback"})
		r.audit(ctx, audit.Record{PID: pid, Msg: "start_set_fallback", ObservedID: -1})
	}
	return nil
}

// buildAutomaton recovers from an allocation failure while sizing a's
// frontier/scratch bitsets and reports it as ErrOOM (§7 error kind
// "oom"), rather than letting the process crash (§4.3's allocation-
// failure trade applies here, at Load time, per the engine's
// pre-allocate-once-and-reuse design; see Automaton.Advance).
func (r *Registry) buildAutomaton(b *policy.Blob) (a *Automaton, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a, err = nil, ErrOOM
		}
	}()
	return newAutomatonFromBlob(b), nil
}

// Observe advances pid's automaton on an observed call-site id (§4.3
// "advance-then-close"). An unregistered pid is a documented no-op
// (§4.3): there is no policy to violate. If the resulting frontier is
// empty, the observation is a violation: pid is killed, but its
// automaton entry is left in place, so a failed or delayed kill doesn't
// open an unsupervised window — subsequent notifications from the same
// dying pid keep hitting an empty frontier and keep violating.
func (r *Registry) Observe(ctx context.Context, pid uint32, id int32) {
	start := time.Now()
	var span trace.Span
	if r.tracer != nil {
		_, span = r.tracer.observeSpan(ctx, pid, id)
	}

	r.mu.Lock()
	a, ok := r.automata[pid]
	if !ok {
		r.mu.Unlock()
		if span != nil {
			endObserveSpan(span, 0, false)
		}
		return
	}
	a.Advance(id)
	violated := a.Frontier.IsEmpty()
	frontierSize := len(a.Frontier.Active())
	r.mu.Unlock()

	if span != nil {
		endObserveSpan(span, frontierSize, violated)
	}

	if r.metrics != nil {
		r.metrics.observeDuration.Observe(time.Since(start).Seconds())
		r.metrics.frontierSize.WithLabelValues(pidLabel(pid)).Set(float64(frontierSize))
		if violated {
			r.metrics.violations.WithLabelValues(pidLabel(pid)).Inc()
		}
	}

	if violated {
		r.emitter.Emit(emit.Event{PID: pid, Msg: "violation", ObservedID: id})
		r.audit(ctx, audit.Record{PID: pid, Msg: "violation", ObservedID: id})
		if killErr := r.killer.Kill(pid); killErr != nil {
			r.emitter.Emit(emit.Event{PID: pid, Msg: "kill_failed", Meta: map[string]any{"error": killErr.Error()}})
		}
		return
	}
	r.emitter.Emit(emit.Event{PID: pid, Msg: "observed", ObservedID: id})
}

// Unload drops pid's automaton. Returns ErrNotFound if pid has no
// loaded policy (§7 error kind "not_found").
func (r *Registry) Unload(pid uint32) error {
	r.mu.Lock()
	_, ok := r.automata[pid]
	if ok {
		delete(r.automata, pid)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	r.emitter.Emit(emit.Event{PID: pid, Msg: "unloaded"})
	r.audit(context.Background(), audit.Record{PID: pid, Msg: "unloaded", ObservedID: -1})
	return nil
}

func pidLabel(pid uint32) string {
	return strconv.FormatUint(uint64(pid), 10)
}

package breaker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is an exported constant or variable used by the breaker registry.
var ErrCircuitOpen = errors.New("breaker circuit open")

// ErrOperationTimeout is returned when a wrapped call exceeds its
// per-operation timeout; it counts as a failure toward tripping.
var ErrOperationTimeout = errors.New("breaker operation timeout")

// ErrShutdown is returned by calls made after the registry was shut down.
var ErrShutdown = errors.New("breaker registry shut down")

// Stats are the cumulative per-operation outcome counters.
type Stats struct {
	Successes uint64
	Failures  uint64
	Timeouts  uint64
	Rejects   uint64
	Fallbacks uint64
}

// OperationStatus is one operation's breaker state and counters.
type OperationStatus struct {
	Name  string
	State string
	Stats Stats
}

// Recorder receives fire-and-forget breaker observability events.
// Implementations must never block or panic into the caller.
type Recorder interface {
	RecordKongOperation(name string, duration time.Duration, success bool)
	RecordBreakerTransition(name string, from, to string)
	RecordBreakerFallback(name string, policy FallbackPolicy, served bool)
}

// NopRecorder is a Recorder that discards every event.
type NopRecorder struct{}

// RecordKongOperation implements [Recorder].
func (NopRecorder) RecordKongOperation(string, time.Duration, bool) {}

// RecordBreakerTransition implements [Recorder].
func (NopRecorder) RecordBreakerTransition(string, string, string) {}

// RecordBreakerFallback implements [Recorder].
func (NopRecorder) RecordBreakerFallback(string, FallbackPolicy, bool) {}

type opStats struct {
	successes atomic.Uint64
	failures  atomic.Uint64
	timeouts  atomic.Uint64
	rejects   atomic.Uint64
	fallbacks atomic.Uint64
}

type operation struct {
	name  string
	cfg   Config
	cb    *gobreaker.CircuitBreaker
	stats opStats
}

// Registry holds one circuit breaker per operation name plus the stale
// store backing the stale_cache fallback policy. One Registry is shared
// per process, passed by reference to every consumer.
type Registry struct {
	defaults Config
	recorder Recorder
	stale    *staleStore

	mu       sync.Mutex
	ops      map[string]*operation
	shutdown bool
}

// NewRegistry creates a registry with the given defaults. staleTolerance
// bounds how old a stale fallback value may be before it reads as absent.
func NewRegistry(defaults Config, staleTolerance time.Duration, recorder Recorder) *Registry {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if staleTolerance <= 0 {
		staleTolerance = 30 * time.Minute
	}
	return &Registry{
		defaults: defaults.withDefaults(),
		recorder: recorder,
		stale:    newStaleStore(staleTolerance),
		ops:      make(map[string]*operation),
	}
}

// Configure installs a per-operation override. An existing breaker for the
// name is replaced, which resets its state and rolling window; cumulative
// counters are kept.
func (r *Registry) Configure(name string, cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return ErrShutdown
	}

	if existing, ok := r.ops[name]; ok {
		existing.cfg = cfg
		existing.cb = r.newBreaker(name, cfg)
		return nil
	}
	r.ops[name] = &operation{name: name, cfg: cfg, cb: r.newBreaker(name, cfg)}
	return nil
}

func (r *Registry) operationFor(name string) (*operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return nil, ErrShutdown
	}
	if op, ok := r.ops[name]; ok {
		return op, nil
	}
	op := &operation{name: name, cfg: r.defaults, cb: r.newBreaker(name, r.defaults)}
	r.ops[name] = op
	return op, nil
}

// newBreaker maps the registry's threshold model onto gobreaker. MaxRequests
// is pinned to one so a single probe drives every half-open transition; the
// rolling window is realized as gobreaker's closed-state stat reset interval.
func (r *Registry) newBreaker(name string, cfg Config) *gobreaker.CircuitBreaker {
	threshold := float64(cfg.ErrorThresholdPercentage)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.RollingCountTimeout,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.VolumeThreshold {
				return false
			}
			failurePercent := float64(counts.TotalFailures) / float64(counts.Requests) * 100
			return failurePercent >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Print("kongmint: breaker ", name, " ", from.String(), " -> ", to.String())
			r.recorder.RecordBreakerTransition(name, from.String(), to.String())
		},
	})
}

// Do executes fn through the named operation's breaker, creating it with
// the registry defaults on first use. While the breaker is open, fn is not
// invoked and the operation's fallback policy applies; deny reads as
// absence. Timeouts count as failures and are tracked separately.
func (r *Registry) Do(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	return r.execute(ctx, name, "", fn)
}

// DoConsumer is [Registry.Do] for operations producing a consumer-scoped
// result: successes are mirrored into the stale store under the consumer's
// key, and an open breaker with the stale_cache policy serves the mirrored
// value while it is within tolerance.
func (r *Registry) DoConsumer(ctx context.Context, name, consumerID string, fn func(ctx context.Context) (any, error)) (any, error) {
	return r.execute(ctx, name, staleKeyPrefix+consumerID, fn)
}

func (r *Registry) execute(ctx context.Context, name, staleKey string, fn func(ctx context.Context) (any, error)) (any, error) {
	op, err := r.operationFor(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var value any
	if op.cfg.Enabled {
		value, err = op.cb.Execute(func() (any, error) {
			return op.run(ctx, fn)
		})
	} else {
		value, err = op.run(ctx, fn)
	}
	duration := time.Since(start)

	switch {
	case err == nil:
		op.stats.successes.Add(1)
		r.recorder.RecordKongOperation(name, duration, true)
		if staleKey != "" && value != nil {
			r.stale.put(staleKey, value)
		}
		return value, nil

	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		op.stats.rejects.Add(1)
		return r.fallback(op, staleKey)

	case errors.Is(err, ErrOperationTimeout):
		op.stats.timeouts.Add(1)
		op.stats.failures.Add(1)
		r.recorder.RecordKongOperation(name, duration, false)
		return nil, err

	default:
		op.stats.failures.Add(1)
		r.recorder.RecordKongOperation(name, duration, false)
		return nil, err
	}
}

// fallback resolves a rejected call according to the operation's policy.
func (r *Registry) fallback(op *operation, staleKey string) (any, error) {
	if op.cfg.Fallback == PolicyStaleCache && staleKey != "" {
		if value, ok := r.stale.get(staleKey); ok {
			op.stats.fallbacks.Add(1)
			r.recorder.RecordBreakerFallback(op.name, PolicyStaleCache, true)
			return value, nil
		}
		r.recorder.RecordBreakerFallback(op.name, PolicyStaleCache, false)
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, op.name)
	}
	r.recorder.RecordBreakerFallback(op.name, PolicyDeny, false)
	return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, op.name)
}

// run invokes fn under the operation's per-call timeout. The wrapped call
// keeps running in its goroutine after a timeout; its eventual result is
// discarded.
func (op *operation) run(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if op.cfg.Timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, op.cfg.Timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(callCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrOperationTimeout, op.name, op.cfg.Timeout)
		}
		return nil, callCtx.Err()
	}
}

// State reports the named operation's breaker state, or "" when the
// operation has never run.
func (r *Registry) State(name string) string {
	r.mu.Lock()
	op, ok := r.ops[name]
	r.mu.Unlock()
	if !ok {
		return ""
	}
	return op.cb.State().String()
}

// Status returns every known operation's state and counters, sorted by name.
func (r *Registry) Status() []OperationStatus {
	r.mu.Lock()
	ops := make([]*operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, op)
	}
	r.mu.Unlock()

	statuses := make([]OperationStatus, 0, len(ops))
	for _, op := range ops {
		statuses = append(statuses, OperationStatus{
			Name:  op.name,
			State: op.cb.State().String(),
			Stats: Stats{
				Successes: op.stats.successes.Load(),
				Failures:  op.stats.failures.Load(),
				Timeouts:  op.stats.timeouts.Load(),
				Rejects:   op.stats.rejects.Load(),
				Fallbacks: op.stats.fallbacks.Load(),
			},
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// StaleDataInfo returns every stale-store entry and its age in minutes.
func (r *Registry) StaleDataInfo() []StaleDataInfo {
	infos := r.stale.info()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// Shutdown disposes all breakers and empties the stale store. Idempotent;
// further calls against the registry return [ErrShutdown].
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true
	r.ops = make(map[string]*operation)
	r.mu.Unlock()
	r.stale.clear()
}

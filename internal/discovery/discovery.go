// Package discovery runs scan cycles. A cycle fans every address of a range
// out to one worker pool per probe tool, waits for all pools, reduces the
// results in address order and appends one detection per address to the
// store.
package discovery

//go:generate mockgen -destination=../mocks/mock_store.go -package=mocks github.com/anstrom/newhosts/internal/discovery Store

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/logging"
	"github.com/anstrom/newhosts/internal/metrics"
	"github.com/anstrom/newhosts/internal/network"
	"github.com/anstrom/newhosts/internal/probe"
	"github.com/anstrom/newhosts/internal/workers"
)

const defaultProbeDeadline = 12 * time.Second

// State is the phase of the cycle the engine is in.
type State string

// Cycle phases.
const (
	StateIdle        State = "idle"
	StateDispatching State = "dispatching"
	StateAwaiting    State = "awaiting"
	StateReducing    State = "reducing"
	StateDone        State = "done"
)

// Store is where cycle detections are persisted.
type Store interface {
	AddDetections(ctx context.Context, detections []db.Detection) (int64, error)
}

// Options tune an Engine.
type Options struct {
	// ProbeDeadline bounds one probe of one address. Zero selects a
	// default.
	ProbeDeadline time.Duration
	// Workers overrides the per-tool pool sizes when positive.
	Workers int
}

// Engine runs scan cycles. Cycles on one engine are serialized.
type Engine struct {
	store    Store
	probers  probe.Set
	deadline time.Duration
	workers  int

	mu    sync.Mutex
	state State
	cycle sync.Mutex
}

// NewEngine creates a new discovery engine.
func NewEngine(store Store, probers probe.Set, opts Options) *Engine {
	if opts.ProbeDeadline <= 0 {
		opts.ProbeDeadline = defaultProbeDeadline
	}
	return &Engine{
		store:    store,
		probers:  probers,
		deadline: opts.ProbeDeadline,
		workers:  opts.Workers,
		state:    StateIdle,
	}
}

// State returns the phase of the running cycle. After a cycle it reports
// StateDone on success and StateIdle on failure.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) poolSize(kind probe.Kind) int {
	if e.workers > 0 {
		return e.workers
	}
	if n := e.probers.Workers[kind]; n > 0 {
		return n
	}
	return workers.DefaultConfig().Size
}

type toolPool struct {
	kind probe.Kind
	pool *workers.Pool[netip.Addr, probe.Result]
}

// RunCycle probes every address of r with every configured tool and stores
// the detections. A cycle either completes fully or returns an error: an
// incomplete pool or a failed store write are fatal, probe failures are
// not.
func (e *Engine) RunCycle(ctx context.Context, r network.Range) (_ *CycleResult, err error) {
	e.cycle.Lock()
	defer e.cycle.Unlock()
	e.setState(StateIdle)
	defer func() {
		if err != nil {
			e.setState(StateIdle)
		}
	}()

	if len(e.probers.Probers) == 0 {
		return nil, errors.ErrConfigMissing("probes.tools")
	}

	started := time.Now()
	result := NewCycleResult(r.Name, e.probers.Kinds())
	result.ID = uuid.New().String()
	result.Range = r.String()
	result.Started = started

	logger := logging.Default().WithComponent("discovery").WithCycleID(result.ID)
	logger.InfoCycle("Starting scan cycle", r.Name,
		"range", r.String(),
		"addresses", r.Len(),
		"tools", result.Tools)

	e.setState(StateDispatching)
	pools, err := e.dispatch(r)
	if err != nil {
		return nil, err
	}

	e.setState(StateAwaiting)
	outcomes, err := e.await(ctx, pools)
	if err != nil {
		logger.ErrorCycle("Scan cycle lost probe results", r.Name, err)
		metrics.RecordCycle(false, time.Since(started), 0)
		return nil, err
	}

	e.setState(StateReducing)
	for addr := range r.All() {
		host := HostResult{Address: addr, Results: make(map[probe.Kind]probe.Result, len(pools))}
		for _, tp := range pools {
			outcome := outcomes[tp.kind][addr]
			res := outcome.Value
			if outcome.Err != nil {
				res = probe.Failed(tp.kind, addr, outcome.Err)
			}
			if res.Err != nil {
				logger.WarnProbe("Probe failed", string(tp.kind), addr.String(), res.Err)
			}
			metrics.RecordProbe(string(tp.kind), res.Success, outcome.Duration)
			host.Results[tp.kind] = res
		}
		result.Put(host)
	}

	ts, err := e.store.AddDetections(ctx, result.Detections())
	if err != nil {
		logger.ErrorCycle("Failed to store detections", r.Name, err)
		metrics.RecordCycle(false, time.Since(started), result.WithSignal())
		return nil, err
	}
	result.Timestamp = ts
	result.Duration = time.Since(started)

	e.setState(StateDone)
	metrics.RecordCycle(true, result.Duration, result.WithSignal())
	logger.InfoCycle("Scan cycle completed", r.Name,
		"timestamp", ts,
		"hosts_with_signal", result.WithSignal(),
		"duration", result.Duration)
	return result, nil
}

// dispatch creates one pool per tool and submits every address to each.
func (e *Engine) dispatch(r network.Range) ([]toolPool, error) {
	pools := make([]toolPool, 0, len(e.probers.Probers))
	for _, p := range e.probers.Probers {
		prober := p
		pool := workers.New(workers.Config{
			Name:        string(prober.Kind()),
			Size:        e.poolSize(prober.Kind()),
			ItemTimeout: e.deadline,
		}, func(ctx context.Context, addr netip.Addr) (probe.Result, error) {
			return prober.Probe(ctx, addr), nil
		})

		for addr := range r.All() {
			if err := pool.Submit(addr); err != nil {
				return nil, fmt.Errorf("failed to submit %s to %s pool: %w", addr, prober.Kind(), err)
			}
		}
		pools = append(pools, toolPool{kind: prober.Kind(), pool: pool})
	}
	return pools, nil
}

// await runs every pool concurrently and collects their outcomes.
func (e *Engine) await(ctx context.Context, pools []toolPool) (map[probe.Kind]map[netip.Addr]workers.Outcome[probe.Result], error) {
	var g errgroup.Group
	for _, tp := range pools {
		pool := tp.pool
		g.Go(func() error {
			return pool.Run(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outcomes := make(map[probe.Kind]map[netip.Addr]workers.Outcome[probe.Result], len(pools))
	for _, tp := range pools {
		results, err := tp.pool.Collect()
		if err != nil {
			return nil, err
		}
		outcomes[tp.kind] = results
	}
	return outcomes, nil
}

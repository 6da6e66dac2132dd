// Package workers provides the bounded worker pool that runs one function
// over a batch of items. Every submitted item ends with exactly one Outcome:
// errors, panics and deadline overruns are recorded as failed outcomes so a
// single bad item never loses the results of the others.
package workers

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/logging"
	"github.com/anstrom/newhosts/internal/metrics"
)

var (
	// ErrDuplicateItem is returned when an item is submitted twice.
	ErrDuplicateItem = stderrors.New("item already submitted to this pool")
	// ErrAlreadyRun is returned when a pool is reused after Run.
	ErrAlreadyRun = stderrors.New("worker pool has already run")
	// ErrNotRun is returned by Collect before Run has completed.
	ErrNotRun = stderrors.New("worker pool has not run yet")
)

// Func is the work executed for each item.
type Func[T comparable, R any] func(ctx context.Context, item T) (R, error)

// Outcome is the result of running the pool function on one item.
type Outcome[R any] struct {
	Value    R
	Err      error
	Duration time.Duration
}

// Failed reports whether the item ended with an error.
func (o Outcome[R]) Failed() bool {
	return o.Err != nil
}

// Config holds configuration for the worker pool.
type Config struct {
	// Name identifies the pool in logs, metrics and integrity errors.
	Name string
	// Size is the maximum number of items executed concurrently.
	Size int
	// ItemTimeout bounds a single execution (0 = no limit). An item that
	// overruns is recorded as a timeout even if the function ignores its
	// context.
	ItemTimeout time.Duration
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Name: "default",
		Size: 10,
	}
}

type poolState int

const (
	stateIdle poolState = iota
	stateRunning
	stateDone
)

type completion[T comparable, R any] struct {
	item    T
	outcome Outcome[R]
}

// Pool runs fn over the submitted items with at most Size concurrent
// executions. A pool is single use: Submit items, Run once, then Collect.
type Pool[T comparable, R any] struct {
	config Config
	fn     Func[T, R]

	mu        sync.Mutex
	state     poolState
	queue     []T
	submitted map[T]struct{}
	results   map[T]Outcome[R]
}

// New creates a new worker pool with the given configuration.
func New[T comparable, R any](config Config, fn Func[T, R]) *Pool[T, R] {
	if config.Size < 1 {
		config.Size = 1
	}
	if config.Name == "" {
		config.Name = DefaultConfig().Name
	}
	return &Pool[T, R]{
		config:    config,
		fn:        fn,
		submitted: make(map[T]struct{}),
	}
}

// Name returns the pool name.
func (p *Pool[T, R]) Name() string {
	return p.config.Name
}

// Submit queues an item. Items must be unique within a pool.
func (p *Pool[T, R]) Submit(item T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateIdle {
		return ErrAlreadyRun
	}
	if _, ok := p.submitted[item]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateItem, item)
	}
	p.submitted[item] = struct{}{}
	p.queue = append(p.queue, item)
	return nil
}

// Len returns the number of submitted items.
func (p *Pool[T, R]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Run executes every submitted item and blocks until all workers have
// returned. Items still queued when ctx is done are recorded as canceled
// without calling fn.
func (p *Pool[T, R]) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.state != stateIdle {
		p.mu.Unlock()
		return ErrAlreadyRun
	}
	p.state = stateRunning
	queue := p.queue
	p.mu.Unlock()

	workerCount := min(p.config.Size, len(queue))
	logging.Debug("Starting worker pool",
		"pool", p.config.Name,
		"worker_count", workerCount,
		"items", len(queue))
	metrics.SetPoolSize(p.config.Name, p.config.Size)

	jobs := make(chan T, len(queue))
	for _, item := range queue {
		jobs <- item
	}
	close(jobs)

	completions := make(chan completion[T, R], len(queue))
	var wg sync.WaitGroup
	for id := 0; id < workerCount; id++ {
		wg.Add(1)
		go p.worker(ctx, id, jobs, completions, &wg)
	}
	wg.Wait()
	close(completions)

	// Only this goroutine touches the results map.
	results := make(map[T]Outcome[R], len(queue))
	failures := 0
	for c := range completions {
		results[c.item] = c.outcome
		if c.outcome.Failed() {
			failures++
		}
	}

	p.mu.Lock()
	p.results = results
	p.state = stateDone
	p.mu.Unlock()

	logging.Debug("Worker pool finished",
		"pool", p.config.Name,
		"items", len(queue),
		"failures", failures)
	return nil
}

func (p *Pool[T, R]) worker(ctx context.Context, id int, jobs <-chan T,
	completions chan<- completion[T, R], wg *sync.WaitGroup) {
	defer wg.Done()

	for item := range jobs {
		completions <- completion[T, R]{item: item, outcome: p.execute(ctx, id, item)}
	}
}

// execute runs fn for one item and converts every failure mode into an
// Outcome.
func (p *Pool[T, R]) execute(ctx context.Context, workerID int, item T) Outcome[R] {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Outcome[R]{Err: errors.WrapProbeError(errors.CodeCanceled, p.config.Name, fmt.Sprint(item), err)}
	}

	metrics.AddPoolActive(p.config.Name, 1)
	defer metrics.AddPoolActive(p.config.Name, -1)

	itemCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.config.ItemTimeout > 0 {
		itemCtx, cancel = context.WithTimeout(ctx, p.config.ItemTimeout)
	}
	defer cancel()

	done := make(chan Outcome[R], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Outcome[R]{Err: errors.WrapProbeError(errors.CodePanic, p.config.Name, fmt.Sprint(item),
					fmt.Errorf("panic: %v", r))}
			}
		}()
		value, err := p.fn(itemCtx, item)
		done <- Outcome[R]{Value: value, Err: err}
	}()

	var outcome Outcome[R]
	select {
	case outcome = <-done:
	case <-itemCtx.Done():
		// Give a context-aware function the chance to report its own
		// failure before recording the overrun.
		select {
		case outcome = <-done:
		case <-time.After(10 * time.Millisecond):
			outcome = Outcome[R]{Err: deadlineError(p.config.Name, item, itemCtx.Err())}
		}
	}
	outcome.Duration = time.Since(start)

	if outcome.Err != nil {
		logging.Debug("Pool item failed",
			"pool", p.config.Name,
			"item", fmt.Sprint(item),
			"worker_id", workerID,
			"duration", outcome.Duration,
			"error", outcome.Err)
	}
	return outcome
}

func deadlineError[T any](pool string, item T, err error) error {
	code := errors.CodeTimeout
	if stderrors.Is(err, context.Canceled) {
		code = errors.CodeCanceled
	}
	return errors.WrapProbeError(code, pool, fmt.Sprint(item), err)
}

// Collect returns the outcome of every submitted item. It fails with an
// IntegrityError when any submitted item has no outcome.
func (p *Pool[T, R]) Collect() (map[T]Outcome[R], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateDone {
		return nil, ErrNotRun
	}

	var missing []string
	for item := range p.submitted {
		if _, ok := p.results[item]; !ok {
			missing = append(missing, fmt.Sprint(item))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.ErrIncompleteResults(p.config.Name, missing)
	}

	out := make(map[T]Outcome[R], len(p.results))
	for item, outcome := range p.results {
		out[item] = outcome
	}
	return out, nil
}

// Package watch repeats scan cycles, optionally folding them into an
// accumulated view, and classifies every address against a historical
// snapshot of the detection log.
package watch

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/discovery"
	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/logging"
	"github.com/anstrom/newhosts/internal/metrics"
	"github.com/anstrom/newhosts/internal/network"
)

// Cycler runs one scan cycle.
type Cycler interface {
	RunCycle(ctx context.Context, r network.Range) (*discovery.CycleResult, error)
}

// History loads past detections.
type History interface {
	GetDetections(ctx context.Context, timestamp int64) (db.Snapshot, error)
}

// Sink receives the report of every cycle.
type Sink interface {
	WriteCycle(report Report) error
}

// Report is everything produced by one cycle.
type Report struct {
	// Number counts cycles from 1.
	Number int `json:"cycle"`
	// Cycle is the raw result of this cycle.
	Cycle *discovery.CycleResult `json:"-"`
	// View is what was classified: the accumulated view when collecting,
	// otherwise the cycle itself.
	View *discovery.CycleResult `json:"result"`
	// Entries are the classified addresses in address order.
	Entries []Entry `json:"entries"`
	// Compared reports whether a historical snapshot was used.
	Compared bool `json:"compared"`
	// CompareTimestamp is the snapshot timestamp when Compared is set.
	CompareTimestamp int64 `json:"compare_timestamp,omitempty"`
}

// Options configure a Watcher.
type Options struct {
	// Watch repeats cycles until the context is done.
	Watch bool
	// Interval is the pause between the end of one cycle and the start of
	// the next.
	Interval time.Duration
	// Schedule is a standard cron expression used instead of Interval.
	Schedule string
	// Collect accumulates results across cycles. Requires Watch.
	Collect bool
	// Compare enables classification against the detections stored at
	// CompareTimestamp.
	Compare          bool
	CompareTimestamp int64
}

// Watcher drives the scan loop.
type Watcher struct {
	engine   Cycler
	history  History
	rng      network.Range
	opts     Options
	sink     Sink
	schedule cron.Schedule
	acc      *Accumulator
	now      func() time.Time
	logger   *logging.Logger
}

// NewWatcher validates the options and creates a watcher.
func NewWatcher(engine Cycler, history History, rng network.Range, opts Options, sink Sink) (*Watcher, error) {
	if opts.Collect && !opts.Watch {
		return nil, errors.ErrConflictingFlags("collecting results requires watch mode")
	}
	if opts.Compare && history == nil {
		return nil, errors.ErrConfigMissing("history store")
	}

	w := &Watcher{
		engine:  engine,
		history: history,
		rng:     rng,
		opts:    opts,
		sink:    sink,
		now:     time.Now,
		logger:  logging.Default().WithComponent("watch"),
	}
	if opts.Collect {
		w.acc = NewAccumulator()
	}

	if opts.Watch {
		schedule, err := parseSchedule(opts)
		if err != nil {
			return nil, err
		}
		w.schedule = schedule
	}
	return w, nil
}

func parseSchedule(opts Options) (cron.Schedule, error) {
	if opts.Schedule != "" {
		schedule, err := cron.ParseStandard(opts.Schedule)
		if err != nil {
			return nil, errors.WrapConfigError(errors.CodeValidation, "invalid watch schedule", err)
		}
		return schedule, nil
	}
	if opts.Interval <= 0 {
		return nil, errors.ErrConfigInvalid("watch.interval", opts.Interval)
	}
	return cron.Every(opts.Interval), nil
}

// Run executes cycles until watch mode ends. A cycle in progress is never
// interrupted: cancellation of ctx is only observed between cycles. Any
// cycle error, including a failed store write, stops the loop.
func (w *Watcher) Run(ctx context.Context) error {
	var history db.Snapshot
	if w.opts.Compare {
		snapshot, err := w.history.GetDetections(ctx, w.opts.CompareTimestamp)
		if err != nil {
			return err
		}
		if len(snapshot) == 0 {
			w.logger.Warn("No detections recorded at comparison timestamp",
				"timestamp", w.opts.CompareTimestamp)
		}
		history = snapshot
	}

	cycleCtx := context.WithoutCancel(ctx)
	for n := 1; ; n++ {
		cycle, err := w.engine.RunCycle(cycleCtx, w.rng)
		if err != nil {
			w.logger.ErrorCycle("Stopping after failed cycle", w.rng.Name, err, "cycle", n)
			return err
		}

		view := cycle
		if w.acc != nil {
			view = w.acc.Merge(cycle)
		}

		entries := Classify(history, view)
		for _, e := range entries {
			metrics.IncrementHostStatus(e.Status.Name())
		}

		report := Report{
			Number:           n,
			Cycle:            cycle,
			View:             view,
			Entries:          entries,
			Compared:         history != nil,
			CompareTimestamp: w.opts.CompareTimestamp,
		}
		if err := w.sink.WriteCycle(report); err != nil {
			return err
		}

		if !w.opts.Watch {
			return nil
		}
		if ctx.Err() != nil {
			w.logger.Info("Watch stopped", "cycles", n)
			return nil
		}

		next := w.schedule.Next(w.now())
		w.logger.Debug("Waiting for next cycle", "cycle", n, "next", next)
		timer := time.NewTimer(next.Sub(w.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("Watch stopped", "cycles", n)
			return nil
		case <-timer.C:
		}
	}
}

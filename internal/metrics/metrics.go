package metrics

import (
	"sync/atomic"
	"time"
)

// Common label keys.
const (
	LabelTool      = "tool"
	LabelPool      = "pool"
	LabelOutcome   = "outcome"
	LabelStatus    = "status"
	LabelOperation = "operation"
)

// Label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	StatusSuccess  = "success"
	StatusError    = "error"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

// SetEnabled enables or disables metrics collection through the package
// level helpers.
func SetEnabled(on bool) {
	enabled.Store(on)
}

// IsEnabled returns whether metrics collection is enabled.
func IsEnabled() bool {
	return enabled.Load()
}

// Helper functions for common metrics

// RecordProbe records a probe outcome on the global metrics.
func RecordProbe(tool string, success bool, duration time.Duration) {
	if IsEnabled() {
		GetGlobalMetrics().RecordProbe(tool, success, duration)
	}
}

// SetPoolSize records a pool's worker count on the global metrics.
func SetPoolSize(pool string, size int) {
	if IsEnabled() {
		GetGlobalMetrics().SetPoolSize(pool, size)
	}
}

// AddPoolActive adjusts a pool's in-flight gauge on the global metrics.
func AddPoolActive(pool string, delta float64) {
	if IsEnabled() {
		GetGlobalMetrics().AddPoolActive(pool, delta)
	}
}

// RecordCycle records a scan cycle on the global metrics.
func RecordCycle(success bool, duration time.Duration, hostsWithSignal int) {
	if IsEnabled() {
		GetGlobalMetrics().RecordCycle(success, duration, hostsWithSignal)
	}
}

// IncrementHostStatus counts a diff classification on the global metrics.
func IncrementHostStatus(status string) {
	if IsEnabled() {
		GetGlobalMetrics().IncrementHostStatus(status)
	}
}

// RecordDatabaseQuery records a store operation on the global metrics.
func RecordDatabaseQuery(operation string, duration time.Duration, success bool) {
	if IsEnabled() {
		GetGlobalMetrics().RecordDatabaseQuery(operation, duration, success)
	}
}

// Timer provides a simple way to measure execution time.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer for measuring execution time.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer was created.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveDatabase records the elapsed time as a store operation.
func (t *Timer) ObserveDatabase(operation string, err error) {
	RecordDatabaseQuery(operation, t.Elapsed(), err == nil)
}

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGlobalMetricsSingleton(t *testing.T) {
	assert.Same(t, GetGlobalMetrics(), GetGlobalMetrics())
}

func TestPackageHelpersRespectEnabled(t *testing.T) {
	defer SetEnabled(true)
	global := GetGlobalMetrics()
	counter := global.probesTotal.WithLabelValues("hostname", OutcomeSuccess)

	before := testutil.ToFloat64(counter)
	SetEnabled(false)
	assert.False(t, IsEnabled())
	RecordProbe("hostname", true, time.Millisecond)
	assert.Equal(t, before, testutil.ToFloat64(counter))

	SetEnabled(true)
	RecordProbe("hostname", true, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Elapsed(), 5*time.Millisecond)

	global := GetGlobalMetrics()
	failures := global.dbQueries.WithLabelValues("timer_test", StatusError)
	before := testutil.ToFloat64(failures)
	timer.ObserveDatabase("timer_test", errors.New("locked"))
	assert.Equal(t, before+1, testutil.ToFloat64(failures))
}

package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestFactoryCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := &factory{registerer: reg}

	inc := f.Counter("ct_events", WithDescription("events"), WithLabels("kind"))
	inc(2, "syscall")
	inc(1, "signal")
	inc(1, "syscall")

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "ct_events_total"))
	assert.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(`
		# HELP ct_events_total events
		# TYPE ct_events_total counter
		ct_events_total{kind="signal"} 1
		ct_events_total{kind="syscall"} 3
	`), "ct_events_total"))
}

func TestFactoryGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := &factory{registerer: reg}

	set := f.Gauge("ct_live", WithDescription("live"))
	set(3)
	set(5)

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "ct_live"))
	assert.Len(t, f.gauges, 1)
}

func TestObservableGaugePanicsWithLabels(t *testing.T) {
	f := &factory{registerer: prometheus.NewRegistry()}
	assert.Panics(t, func() {
		f.ObservableGauge("ct_observable", func() float64 { return 1 }, WithLabels("pid"))
	})
}

func TestWithLabels(t *testing.T) {
	options := &CommonOptions{}
	WithLabels("pid", "stream")(options)
	WithDescription("trace bytes")(options)
	assert.Equal(t, []string{"pid", "stream"}, options.labels)
	assert.Equal(t, "trace bytes", options.description)
}

func TestFactoryHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := &factory{registerer: reg}

	observe := f.Histogram("ct_capture_bytes", WithDescription("capture size"), WithBuckets(100, 1000))
	observe(50)
	observe(500)
	observe(5000)

	assert.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(`
		# HELP ct_capture_bytes capture size
		# TYPE ct_capture_bytes histogram
		ct_capture_bytes_bucket{le="100"} 1
		ct_capture_bytes_bucket{le="1000"} 2
		ct_capture_bytes_bucket{le="+Inf"} 3
		ct_capture_bytes_sum 5550
		ct_capture_bytes_count 3
	`), "ct_capture_bytes"))
}

func TestDefaultHelp(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := &factory{registerer: reg}
	f.Gauge("ct_plain")(1)

	assert.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(`
		# HELP ct_plain gauge ct_plain
		# TYPE ct_plain gauge
		ct_plain 1
	`), "ct_plain"))
}

package tracefile

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/coretrace/coretrace/pkg/telemetry"
)

// recordingFactory keeps the last value written per metric and label set.
type recordingFactory struct {
	values map[string]float64
}

func (f *recordingFactory) fn(name string) func(float64, ...string) {
	return func(v float64, labels ...string) {
		key := strings.Join(append([]string{name}, labels...), "/")
		f.values[key] = v
	}
}

func (f *recordingFactory) Counter(name string, _ ...telemetry.Option) telemetry.CounterFn {
	inc := f.fn(name)
	return func(v float64, labels ...string) {
		key := strings.Join(append([]string{name}, labels...), "/")
		inc(f.values[key]+v, labels...)
	}
}

func (f *recordingFactory) Gauge(name string, _ ...telemetry.Option) telemetry.GaugeFn {
	return f.fn(name)
}

func (f *recordingFactory) Histogram(name string, _ ...telemetry.Option) telemetry.HistogramFn {
	return f.fn(name)
}

func (f *recordingFactory) ObservableGauge(string, func() float64, ...telemetry.Option) {}

func TestDirCollector(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTrace(t, fs, WriterOptions{})

	f := &recordingFactory{values: map[string]float64{}}
	c := NewDirCollector(fs, "/trace", zap.NewNop())
	c.Register(f)
	c.Collect()

	ctxInfo, err := fs.Stat(ContextPath("/trace", 100))
	assert.NoError(t, err)
	mapsInfo, err := fs.Stat(MapsPath("/trace", 100))
	assert.NoError(t, err)

	assert.Equal(t, float64(1), f.values["coretrace_traces"])
	assert.Equal(t, float64(ctxInfo.Size()), f.values["coretrace_trace_bytes/100/context"])
	assert.Equal(t, float64(mapsInfo.Size()), f.values["coretrace_trace_bytes/100/maps"])
	assert.NotContains(t, f.values, "coretrace_trace_scan_failures")

	missing := NewDirCollector(fs, "/nowhere", zap.NewNop())
	missing.Register(f)
	missing.Collect()
	missing.Collect()
	assert.Equal(t, float64(2), f.values["coretrace_trace_scan_failures"])
}

package telemetry

import "github.com/prometheus/client_golang/prometheus"

var defaultRegisterer = prometheus.DefaultRegisterer

// Factory produces metrics. The package level functions register on the
// default registry; collectors get a Factory bound to their own.
type Factory interface {
	Counter(name string, opts ...Option) CounterFn
	Gauge(name string, opts ...Option) GaugeFn
	Histogram(name string, opts ...Option) HistogramFn
	ObservableGauge(name string, fn func() float64, opts ...Option)
}

type factory struct {
	registerer prometheus.Registerer
	// gauges of a collector's registry, reset before every scrape
	gauges []*prometheus.GaugeVec
}

func global() *factory {
	return &factory{registerer: defaultRegisterer}
}

func Counter(name string, opts ...Option) CounterFn {
	return global().Counter(name, opts...)
}

func Gauge(name string, opts ...Option) GaugeFn {
	return global().Gauge(name, opts...)
}

func Histogram(name string, opts ...Option) HistogramFn {
	return global().Histogram(name, opts...)
}

func ObservableGauge(name string, fn func() float64, opts ...Option) {
	global().ObservableGauge(name, fn, opts...)
}

func (f *factory) scoped() bool {
	return f.registerer != defaultRegisterer
}

func (f *factory) reset() {
	for _, g := range f.gauges {
		g.Reset()
	}
}

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter registers name_total and returns a function adding to it.
func (f *factory) Counter(name string, opts ...Option) CounterFn {
	o := newOptions("counter", name, opts)
	vec := promauto.With(f.registerer).NewCounterVec(prometheus.CounterOpts{
		Name: name + "_total",
		Help: o.description,
	}, o.labels)
	return func(v float64, labels ...string) {
		vec.WithLabelValues(labels...).Add(v)
	}
}

// Gauge registers a gauge and returns a function setting it. Gauges of a
// collector are reset before each scrape so label sets that are no longer
// reported disappear.
func (f *factory) Gauge(name string, opts ...Option) GaugeFn {
	o := newOptions("gauge", name, opts)
	vec := promauto.With(f.registerer).NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: o.description,
	}, o.labels)
	if f.scoped() {
		f.gauges = append(f.gauges, vec)
	}
	return func(v float64, labels ...string) {
		vec.WithLabelValues(labels...).Set(v)
	}
}

// Histogram registers a histogram and returns a function observing into
// it. Buckets default to powers of four from 64.
func (f *factory) Histogram(name string, opts ...Option) HistogramFn {
	o := newOptions("histogram", name, opts)
	buckets := o.buckets
	if len(buckets) == 0 {
		buckets = prometheus.ExponentialBuckets(64, 4, 10)
	}
	vec := promauto.With(f.registerer).NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    o.description,
		Buckets: buckets,
	}, o.labels)
	return func(v float64, labels ...string) {
		vec.WithLabelValues(labels...).Observe(v)
	}
}

// ObservableGauge registers a gauge whose value is read from fn at scrape
// time. Labels are not supported.
func (f *factory) ObservableGauge(name string, fn func() float64, opts ...Option) {
	o := newOptions("observable gauge", name, opts)
	if len(o.labels) > 0 {
		panic("ObservableGauge does not support labels")
	}
	promauto.With(f.registerer).NewGaugeFunc(prometheus.GaugeOpts{
		Name: name,
		Help: o.description,
	}, fn)
}

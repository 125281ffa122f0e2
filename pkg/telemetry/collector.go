package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Collector computes a batch of metrics on demand.
//
// Register is called once with a Factory bound to the collector's own
// registry; the package level metric functions must not be used from a
// collector. Collect is called on every scrape and must set the latest
// values before returning.
type Collector interface {
	Register(Factory)
	Collect()
}

// RegisterCollector hooks c into the default registry.
func RegisterCollector(c Collector) {
	registerCollector(c, defaultRegisterer)
}

func registerCollector(c Collector, registerer prometheus.Registerer) {
	b := &bridge{
		collector: c,
		registry:  prometheus.NewRegistry(),
	}
	b.factory = &factory{registerer: b.registry}
	c.Register(b.factory)
	registerer.MustRegister(b)
}

// bridge adapts a Collector to prometheus.Collector.
type bridge struct {
	collector Collector
	registry  *prometheus.Registry
	factory   *factory
}

func (b *bridge) Describe(ch chan<- *prometheus.Desc) {
	b.registry.Describe(ch)
}

func (b *bridge) Collect(ch chan<- prometheus.Metric) {
	b.factory.reset()
	b.collector.Collect()
	b.registry.Collect(ch)
}

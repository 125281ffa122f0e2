package telemetry

import (
	"slices"
	"strings"
)

// CounterFn adds to a counter, with one value per declared label.
type CounterFn func(float64, ...string)

// GaugeFn sets a gauge, with one value per declared label.
type GaugeFn func(float64, ...string)

// HistogramFn observes one sample, with one value per declared label.
type HistogramFn func(float64, ...string)

// CommonOptions holds what every metric kind accepts.
type CommonOptions struct {
	description string
	labels      []string
	buckets     []float64
}

type Option func(*CommonOptions)

func newOptions(kind, name string, opts []Option) CommonOptions {
	var o CommonOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.description == "" {
		o.description = kind + " " + name
	}
	return o
}

func WithDescription(description string) Option {
	return func(o *CommonOptions) { o.description = description }
}

func WithLabels(labels ...string) Option {
	return func(o *CommonOptions) { o.labels = labels }
}

// WithBuckets sets the upper bounds of a histogram's buckets.
func WithBuckets(buckets ...float64) Option {
	return func(o *CommonOptions) { o.buckets = buckets }
}

// SnakeCase joins the non-empty segments with underscores.
func SnakeCase(segments ...string) string {
	return strings.Join(slices.DeleteFunc(segments, func(s string) bool { return s == "" }), "_")
}

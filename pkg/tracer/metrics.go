//go:build linux

package tracer

import (
	"sync/atomic"

	"github.com/coretrace/coretrace/pkg/telemetry"
)

var (
	eventsRecorded = telemetry.Counter("coretrace_events_recorded",
		telemetry.WithDescription("Events written to context streams, by kind"),
		telemetry.WithLabels("kind"))

	bytesCaptured = telemetry.Counter("coretrace_captured_bytes",
		telemetry.WithDescription("Register and memory bytes captured into events"))

	captureSize = telemetry.Histogram("coretrace_capture_size_bytes",
		telemetry.WithDescription("Payload size of each recorded event, by kind"),
		telemetry.WithLabels("kind"))

	capturesDropped = telemetry.Counter("coretrace_captures_dropped",
		telemetry.WithDescription("Events dropped because the trace reached its size cap"))

	shortReads = telemetry.Counter("coretrace_short_reads",
		telemetry.WithDescription("Tracee memory reads that returned fewer bytes than requested"))

	threadsSkipped = telemetry.Counter("coretrace_threads_skipped",
		telemetry.WithDescription("Threads left out of a capture because they were running"))

	processesTraced = telemetry.Counter("coretrace_processes_traced",
		telemetry.WithDescription("Processes that had trace streams opened"))

	mapsRescans = telemetry.Counter("coretrace_maps_rescans",
		telemetry.WithDescription("Maps snapshots written"))

	fatalTotal = telemetry.Counter("coretrace_fatal_signals",
		telemetry.WithDescription("Fatal signals intercepted, by signal"),
		telemetry.WithLabels("signal"))

	liveProcesses atomic.Int64
)

func init() {
	telemetry.ObservableGauge("coretrace_processes_live",
		func() float64 {
			return float64(liveProcesses.Load())
		},
		telemetry.WithDescription("Processes currently traced"),
	)
}

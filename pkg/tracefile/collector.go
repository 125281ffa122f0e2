package tracefile

import (
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/coretrace/coretrace/pkg/telemetry"
)

// DirCollector reports the on-disk size of every trace in a directory.
type DirCollector struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger

	traces   telemetry.GaugeFn
	bytes    telemetry.GaugeFn
	failures telemetry.CounterFn
}

func NewDirCollector(fs afero.Fs, dir string, logger *zap.Logger) *DirCollector {
	return &DirCollector{fs: fs, dir: dir, logger: logger}
}

func (c *DirCollector) Register(f telemetry.Factory) {
	c.traces = f.Gauge(telemetry.SnakeCase("coretrace", "traces"),
		telemetry.WithDescription("Traced processes with streams in the trace directory"))
	c.bytes = f.Gauge(telemetry.SnakeCase("coretrace", "trace", "bytes"),
		telemetry.WithDescription("Compressed size of trace streams on disk"),
		telemetry.WithLabels("pid", "stream"))
	c.failures = f.Counter(telemetry.SnakeCase("coretrace", "trace", "scan", "failures"),
		telemetry.WithDescription("Trace directory scans that failed"))
}

func (c *DirCollector) Collect() {
	pids, err := ListPids(c.fs, c.dir)
	if err != nil {
		c.logger.Debug("scanning trace directory", zap.String("dir", c.dir), zap.Error(err))
		c.failures(1)
		return
	}
	c.traces(float64(len(pids)))
	for _, pid := range pids {
		label := strconv.Itoa(pid)
		for stream, path := range map[string]string{
			"context": ContextPath(c.dir, pid),
			"maps":    MapsPath(c.dir, pid),
		} {
			fi, err := c.fs.Stat(path)
			if err != nil {
				continue
			}
			c.bytes(float64(fi.Size()), label, stream)
		}
	}
}

//go:build linux

package cmd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/cespare/xxhash/v2"
	humanize "github.com/dustin/go-humanize"
	"github.com/rs/xid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	yaml "gopkg.in/yaml.v3"

	"github.com/coretrace/coretrace/pkg/buildinfo"
	"github.com/coretrace/coretrace/pkg/cap"
	"github.com/coretrace/coretrace/pkg/config"
	"github.com/coretrace/coretrace/pkg/status"
	"github.com/coretrace/coretrace/pkg/syscalls"
	"github.com/coretrace/coretrace/pkg/telemetry"
	"github.com/coretrace/coretrace/pkg/tracefile"
	"github.com/coretrace/coretrace/pkg/tracer"
)

func runRecordCmd(cmd *cobra.Command, args []string, logger *zap.Logger) error {
	switch {
	case attachPid == 0 && len(args) == 0:
		return errors.New("nothing to record: pass --pid or a command after --")
	case attachPid != 0 && len(args) > 0:
		return errors.New("--pid and a command are mutually exclusive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, "record")
	if err != nil {
		return fmt.Errorf("unable to setup telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Error("unable to shutdown tracer provider", zap.Error(err))
		}
	}()

	logger.Info("starting coretrace", append(buildinfo.Fields(), telemetry.GetSysInfoAsFields())...)
	preflight(logger, attachPid != 0)

	configManager := config.NewConfigManager(logger, newConfigProvider(logger))
	if err := configManager.Run(ctx); err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}
	cfg := configManager.GetConfig()

	id := xid.New()
	dir := filepath.Join(cfg.Trace.Dir, id.String())
	summary := &recordSummary{}
	session, err := tracer.NewSession(logger, sessionConfig(cfg, dir), tracer.WithID(id), tracer.WithObserver(summary))
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	configManager.Subscribe(func(cfg *config.Config) {
		applyConfig(logger, session, cfg)
	})

	telemetry.RegisterCollector(tracefile.NewDirCollector(afero.NewOsFs(), dir, logger))

	if cfg.Status != nil {
		s := status.NewBaseStatusServer(cfg.Status.Listen, logger, telemetry.Handler(), session)
		if err := s.Start(); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() {
			if err := s.Stop(); err != nil {
				logger.Error("unable to cleanup status server", zap.Error(err))
			}
		}()
	}

	if attachPid != 0 {
		logger.Info("attaching", zap.Int("pid", attachPid), zap.String("dir", dir))
		session.Attach(attachPid)
	} else {
		logger.Info("launching", zap.Strings("argv", args), zap.String("dir", dir))
		session.Launch(args)
	}

	runErr := session.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("trace ended with an error", zap.Error(runErr))
	}

	if err := summary.print(cmd.OutOrStdout(), dir); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// recordSummary collects the processes whose traces were closed.
type recordSummary struct {
	tracer.DefaultObserver
	done []tracedProcess
}

type tracedProcess struct {
	pid     int
	exe     string
	written uint64
	dropped uint64
}

func (r *recordSummary) ProcessStopped(p *tracer.Process) error {
	r.done = append(r.done, tracedProcess{pid: p.Pid, exe: p.Exe(), written: p.Written(), dropped: p.Dropped()})
	return nil
}

func (r *recordSummary) print(out io.Writer, dir string) error {
	fmt.Fprintln(out, dir)
	slices.SortFunc(r.done, func(a, b tracedProcess) int { return cmp.Compare(a.pid, b.pid) })
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, p := range r.done {
		line := fmt.Sprintf("  pid %d\t%s\t%s", p.pid, p.exe, humanize.IBytes(p.written))
		if p.dropped > 0 {
			line += fmt.Sprintf("\t%d events dropped", p.dropped)
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

// preflight logs host settings that will make tracing fail.
func preflight(logger *zap.Logger, attaching bool) {
	checks := []cap.Capability{cap.CAP_KERNEL_VERSION}
	if attaching {
		checks = append(checks, cap.CAP_PTRACE_ATTACH)
	}
	for _, c := range checks {
		if err := c.Check(); err != nil {
			logger.Warn("preflight check failed", zap.Stringer("capability", c), zap.Error(err))
		}
	}
}

func newConfigProvider(logger *zap.Logger) config.ConfigProvider {
	overrides := []func(*config.Config){
		func(c *config.Config) {
			if dataDir != "" {
				c.Trace.Dir = dataDir
			}
			if statusListen != "" {
				c.Status = &config.StatusConfig{Listen: statusListen}
			}
		},
	}
	if configPath != "" {
		return config.NewLocalConfigProvider(logger, afero.NewOsFs(), configPath, overrides...)
	}
	logger.Warn("no config file provided, using default config")
	return config.NewDefaultConfigProvider(logger, overrides...)
}

func sessionConfig(cfg *config.Config, dir string) tracer.Config {
	tc := tracer.Config{
		Dir: dir,
		Writer: tracefile.WriterOptions{
			StagingSize: int(cfg.Trace.BufferSize.Bytes()),
			Cap:         cfg.Trace.SizeCap.Bytes(),
			Compression: tracefile.Compression(cfg.Trace.Compression),
		},
		CapBump:    cfg.Trace.CapBump.Bytes(),
		MaxStack:   cfg.Capture.MaxStack.Bytes(),
		MaxParam:   cfg.Capture.MaxParam.Bytes(),
		TLSSize:    cfg.Capture.TLSSize.Bytes(),
		BreakAt:    cfg.Capture.BreakAt,
		ModuleData: cfg.Capture.ModuleData,
	}
	if cfg.Control != nil {
		tc.Control = &tracer.ControlConfig{Dir: cfg.Control.Dir, ShmDir: cfg.Control.ShmDir}
	}
	return tc
}

// reconfigurable is the part of a session a config reload can change.
type reconfigurable interface {
	Table() *syscalls.Table
	UpdateFilter(*syscalls.NumberSet)
	UpdateSignals([]unix.Signal)
}

// applyConfig pushes the reloadable settings into the session. A setting
// that fails to resolve keeps its previous value.
func applyConfig(logger *zap.Logger, s reconfigurable, cfg *config.Config) {
	if set, err := cfg.Capture.Filter(s.Table()); err != nil {
		logger.Error("ignoring syscall filter", zap.String("filter", cfg.Capture.Syscalls), zap.Error(err))
	} else {
		s.UpdateFilter(set)
	}
	if sigs, err := cfg.Capture.SignalList(); err != nil {
		logger.Error("ignoring signal whitelist", zap.Strings("signals", cfg.Capture.Signals), zap.Error(err))
	} else {
		s.UpdateSignals(sigs)
	}

	version := configVersion(cfg)
	telemetry.SetConfigVersion(version)
	logger.Info("configuration applied",
		zap.String("version", version),
		zap.String("syscalls", cfg.Capture.Syscalls),
		zap.String("signals", strings.Join(cfg.Capture.Signals, ",")))
}

// configVersion fingerprints the effective configuration.
func configVersion(cfg *config.Config) string {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

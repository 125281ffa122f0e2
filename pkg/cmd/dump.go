package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coretrace/coretrace/pkg/coredump"
	"github.com/coretrace/coretrace/pkg/tracefile"
)

var (
	dumpPid   int
	dumpEvent int
	dumpOut   string
)

var dumpCmd = &cobra.Command{
	Use:   "dump <trace-dir>",
	Short: "Write an ELF core file for the process state at one event",
	Long: `Rebuild the process image at one event of a trace and write it as an
ELF core file that gdb can open next to the traced executable. The event
defaults to the last signal the process received.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := initLogger()
		defer syncLogger(logger)

		t, err := loadTrace(cmd.Context(), traceFs, args[0], dumpPid, false, logger)
		if err != nil {
			return err
		}
		sum, err := runDump(cmd.Context(), traceFs, t, dumpEvent, dumpOut, logger)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

func init() {
	dumpCmd.Flags().IntVar(&dumpPid, "pid", 0, "Traced process (needed when the directory holds several)")
	dumpCmd.Flags().IntVar(&dumpEvent, "event", -1, "Event index; defaults to the last signal")
	dumpCmd.Flags().StringVarP(&dumpOut, "output", "o", "", "Core file path (default core.<pid>)")
}

func runDump(ctx context.Context, fs afero.Fs, t *tracefile.Trace, index int, out string, logger *zap.Logger) (*coredump.Summary, error) {
	if index < 0 {
		index = t.LastSignal()
		if index < 0 {
			return nil, fmt.Errorf("pid %d received no signals; pass --event", t.Pid)
		}
	}
	if out == "" {
		out = "core." + strconv.Itoa(t.Pid)
	}

	sum, err := coredump.Generate(ctx, fs, t, index, out, logger)
	if err != nil {
		logger.Error("core synthesis failed",
			zap.Int("event", index),
			zap.Int("code", int(coredump.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}
	return sum, nil
}

func printSummary(out io.Writer, sum *coredump.Summary) {
	fmt.Fprintf(out, "wrote %s: event %d, %d threads, %d load segments, %s\n",
		sum.Path, sum.Event, sum.Threads, sum.Loads, humanize.IBytes(sum.Size))
}

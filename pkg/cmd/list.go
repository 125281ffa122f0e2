package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coretrace/coretrace/pkg/tracefile"
)

var (
	listPid          int
	listSyscallsOnly bool
)

var listCmd = &cobra.Command{
	Use:   "list <trace-dir>",
	Short: "Print the events of a recorded trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := initLogger()
		defer syncLogger(logger)

		t, err := loadTrace(cmd.Context(), traceFs, args[0], listPid, false, logger)
		if err != nil {
			return err
		}
		return printTrace(cmd.OutOrStdout(), t, listSyscallsOnly, logger)
	},
}

func init() {
	listCmd.Flags().IntVar(&listPid, "pid", 0, "Traced process to list (needed when the directory holds several)")
	listCmd.Flags().BoolVar(&listSyscallsOnly, "syscalls-only", false, "Only list syscall enter and exit events")
}

func printTrace(out io.Writer, t *tracefile.Trace, syscallsOnly bool, logger *zap.Logger) error {
	f := newFormatter(t)

	fmt.Fprintf(out, "pid %d: %d events, %d maps snapshots\n", t.Pid, len(t.Events), t.Maps.Len())
	if len(t.Events) > 0 {
		if st, ok := t.Maps.Static(t.Events[0].Timestamp); ok {
			fmt.Fprintf(out, "exe %s (%s) argv %s\n", st.Exe, st.Arch, strings.Join(st.CmdLine, " "))
		}
	}
	if idx := t.LastSignal(); idx >= 0 {
		fmt.Fprintf(out, "last signal at event %d\n", idx)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIME\tTID\tEVENT\tTOOK")
	for i := range t.Events {
		ev := &t.Events[i]
		if _, _, ok := ev.Type.Syscall(); syscallsOnly && !ok {
			continue
		}
		paint := eventColor(ev)
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
			ev.Index, f.offset(ev), ev.Tid, paint(f.describe(ev)), f.duration(ev))
	}
	if err := tw.Flush(); err != nil {
		logger.Debug("writing listing", zap.Error(err))
		return err
	}
	return nil
}

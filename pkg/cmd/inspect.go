package cmd

import (
	"fmt"
	"io"
	"time"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/coretrace/coretrace/pkg/tracefile"
	"github.com/coretrace/coretrace/pkg/vmem"
)

var (
	inspectPid   int
	inspectEvent int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <trace-dir>",
	Short: "Show the captured context of one event",
	Long: `Show one event of a trace: the decoded syscall or signal, the captured
threads, and what each pointer argument points at in the captured memory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := initLogger()
		defer syncLogger(logger)

		t, err := loadTrace(cmd.Context(), traceFs, args[0], inspectPid, false, logger)
		if err != nil {
			return err
		}
		return printEvent(cmd.OutOrStdout(), t, inspectEvent)
	},
}

func init() {
	inspectCmd.Flags().IntVar(&inspectPid, "pid", 0, "Traced process (needed when the directory holds several)")
	inspectCmd.Flags().IntVar(&inspectEvent, "event", -1, "Event index; defaults to the last signal")
}

func printEvent(out io.Writer, t *tracefile.Trace, index int) error {
	if index < 0 {
		index = t.LastSignal()
		if index < 0 {
			return fmt.Errorf("pid %d has no signal events; pass --event", t.Pid)
		}
	}
	ev, err := t.LoadEvent(index)
	if err != nil {
		return err
	}
	f := newFormatter(t)
	snap, _ := t.Maps.At(ev.Timestamp)

	fmt.Fprintf(out, "event %d %s tid %d\n", ev.Index, f.offset(ev), ev.Tid)
	fmt.Fprintf(out, "  %s\n", eventColor(ev)(f.describe(ev)))
	if ev.Paired {
		fmt.Fprintf(out, "  paired with event %d, took %s\n", ev.Peer, time.Duration(ev.Duration))
	}
	if si, ok := ev.SigInfo(); ok && si.Addr != 0 {
		fmt.Fprintf(out, "  fault address %#x %s\n", si.Addr, locate(snap, si.Addr))
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\nthreads (%d):\n", len(ev.Threads))
	for _, th := range ev.Threads {
		pc, sp := "?", "?"
		if f.arch != nil && len(th.Regs) >= f.arch.RegsSize() {
			pc = fmt.Sprintf("%#x", f.arch.PC(th.Regs))
			sp = fmt.Sprintf("%#x", f.arch.StackPointer(th.Regs))
		}
		fmt.Fprintf(tw, "  tid %d\tpc %s\tsp %s\tstack %s\t%s\n",
			th.Tid, pc, sp, th.Stack, humanize.IBytes(th.Stack.Len()))
	}

	if nr, _, ok := ev.Type.Syscall(); ok {
		args, hasArgs := ev.SyscallArgs()
		if !hasArgs && ev.Paired {
			args, hasArgs = t.Events[ev.Peer].SyscallArgs()
		}
		if d := f.descriptor(nr); d != nil && hasArgs && len(d.Ptrs) > 0 {
			fmt.Fprintln(tw, "\npointer arguments:")
			for _, p := range d.Ptrs {
				addr := args[p.Arg]
				data, captured := regionAt(ev.Regions, addr)
				what := "not captured"
				if captured {
					what = fmt.Sprintf("%s\t%s", humanize.IBytes(uint64(len(data))), preview(data, 64))
				}
				fmt.Fprintf(tw, "  arg%d\t%#x\t%s\t%s\n", p.Arg, addr, locate(snap, addr), what)
			}
		}
	}

	fmt.Fprintf(tw, "\nregions (%d):\n", len(ev.Regions))
	for _, r := range ev.Regions {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", r.Segment(), humanize.IBytes(uint64(len(r.Data))), locate(snap, r.Start))
	}
	return tw.Flush()
}

// regionAt returns the captured bytes from addr to the end of the region
// holding it.
func regionAt(regions []tracefile.Region, addr uint64) ([]byte, bool) {
	for _, r := range regions {
		if r.Segment().Contains(addr) {
			return r.Data[addr-r.Start:], true
		}
	}
	return nil, false
}

// locate names the mapping holding addr.
func locate(snap *tracefile.MapsSnapshot, addr uint64) string {
	if snap == nil {
		return "[?]"
	}
	i := vmem.Find(snap.Mappings, addr)
	if i < 0 {
		return "[unmapped]"
	}
	m := snap.Mappings[i]
	path := m.Path
	if path == "" {
		path = "[anon]"
	}
	return fmt.Sprintf("%s %s+%#x", path, m.Perm, addr-m.Start)
}

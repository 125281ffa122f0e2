package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/coretrace/coretrace/pkg/arch"
	"github.com/coretrace/coretrace/pkg/syscalls"
	"github.com/coretrace/coretrace/pkg/tracefile"
)

// resolvePid picks the traced process of dir: pid itself when set,
// otherwise the only one present.
func resolvePid(fs afero.Fs, dir string, pid int) (int, error) {
	if pid != 0 {
		return pid, nil
	}
	pids, err := tracefile.ListPids(fs, dir)
	if err != nil {
		return 0, err
	}
	switch len(pids) {
	case 0:
		return 0, fmt.Errorf("no traces in %s", dir)
	case 1:
		return pids[0], nil
	default:
		ids := make([]string, len(pids))
		for i, p := range pids {
			ids[i] = strconv.Itoa(p)
		}
		return 0, fmt.Errorf("%s holds several traces, pick one with --pid: %s", dir, strings.Join(ids, ", "))
	}
}

func loadTrace(ctx context.Context, fs afero.Fs, dir string, pid int, payload bool, logger *zap.Logger) (*tracefile.Trace, error) {
	pid, err := resolvePid(fs, dir, pid)
	if err != nil {
		return nil, err
	}
	return tracefile.LoadTrace(ctx, fs, dir, pid, logger, tracefile.WithPayload(payload))
}

// formatter renders events the way strace prints them.
type formatter struct {
	arch  arch.Arch
	table *syscalls.Table
	base  uint64
}

// newFormatter resolves the syscall table from the trace's recorded
// architecture, falling back to the host's.
func newFormatter(t *tracefile.Trace) *formatter {
	f := &formatter{}
	name := ""
	if len(t.Events) > 0 {
		f.base = t.Events[0].Timestamp
		if st, ok := t.Maps.Static(f.base); ok {
			name = st.Arch
		}
	}
	if name == "" {
		if a, err := arch.Host(); err == nil {
			name = a.Name()
		}
	}
	if a, err := arch.ForName(name); err == nil {
		f.arch = a
	}
	if table, err := syscalls.NewTable(name); err == nil {
		f.table = table
	}
	return f
}

func (f *formatter) name(nr int) string {
	if f.table != nil {
		return f.table.Name(nr)
	}
	return "syscall_" + strconv.Itoa(nr)
}

func (f *formatter) descriptor(nr int) *syscalls.Descriptor {
	if f.table == nil {
		return nil
	}
	return f.table.Lookup(nr)
}

func (f *formatter) offset(ev *tracefile.Event) string {
	if ev.Timestamp < f.base {
		return "+0s"
	}
	return "+" + time.Duration(ev.Timestamp-f.base).String()
}

func (f *formatter) args(nr int, args [6]uint64) string {
	n := len(args)
	d := f.descriptor(nr)
	if d != nil {
		n = d.Args
	}
	parts := make([]string, 0, n)
	for i := range n {
		if d != nil {
			if _, ok := d.PointerFor(i); ok {
				parts = append(parts, fmt.Sprintf("%#x", args[i]))
				continue
			}
		}
		parts = append(parts, formatScalar(args[i]))
	}
	return strings.Join(parts, ", ")
}

func formatScalar(v uint64) string {
	if s := int64(v); s > -4096 && s < 1<<20 {
		return strconv.FormatInt(s, 10)
	}
	return fmt.Sprintf("%#x", v)
}

func formatResult(res int64) string {
	if res < 0 && res > -4096 {
		errno := syscall.Errno(-res)
		if name := unix.ErrnoName(errno); name != "" {
			return fmt.Sprintf("-1 %s (%s)", name, errno.Error())
		}
		return fmt.Sprintf("-1 errno %d", -res)
	}
	if res > 1<<20 {
		return fmt.Sprintf("%#x", res)
	}
	return strconv.FormatInt(res, 10)
}

// describe renders one event on a single line.
func (f *formatter) describe(ev *tracefile.Event) string {
	if nr, exit, ok := ev.Type.Syscall(); ok {
		name := f.name(nr)
		if exit {
			if ev.Paired {
				return fmt.Sprintf("<... %s resumed> = %s", name, formatResult(ev.Result))
			}
			res, _ := ev.ExitResult()
			return fmt.Sprintf("<... %s unmatched> = %s", name, formatResult(res))
		}
		args, _ := ev.SyscallArgs()
		call := fmt.Sprintf("%s(%s)", name, f.args(nr, args))
		if ev.Paired {
			return call + " = " + formatResult(ev.Result)
		}
		return call + " ..."
	}

	r, ok := ev.Type.Reason()
	if !ok {
		return ev.Type.String()
	}
	switch r {
	case tracefile.ReasonSignal:
		si, _ := ev.SigInfo()
		return fmt.Sprintf("--- %s {si_code=%d, si_errno=%d, si_addr=%#x} ---",
			unix.SignalName(unix.Signal(si.Signo)), si.Code, si.Errno, si.Addr)
	case tracefile.ReasonClone:
		ci, _ := ev.CloneInfo()
		kind := "process"
		if ci.Thread {
			kind = "thread"
		}
		return fmt.Sprintf("+++ clone %s %d +++", kind, ci.Child)
	case tracefile.ReasonExit:
		raw, _ := ev.ExitStatus()
		ws := unix.WaitStatus(raw)
		switch {
		case ws.Exited():
			return fmt.Sprintf("+++ exited with %d +++", ws.ExitStatus())
		case ws.Signaled():
			return fmt.Sprintf("+++ killed by %s +++", unix.SignalName(ws.Signal()))
		default:
			return fmt.Sprintf("+++ exit status %#x +++", raw)
		}
	case tracefile.ReasonBreakpoint:
		addr, sym, _ := ev.Breakpoint()
		return fmt.Sprintf("--- breakpoint %s at %#x ---", sym, addr)
	case tracefile.ReasonSeccomp:
		var data uint64
		if len(ev.Extra) >= 8 {
			data = arch.ByteOrder.Uint64(ev.Extra)
		}
		return fmt.Sprintf("--- seccomp data=%#x ---", data)
	default:
		return "--- " + r.String() + " ---"
	}
}

func (f *formatter) duration(ev *tracefile.Event) string {
	if !ev.Paired || !ev.Type.IsEnter() {
		return ""
	}
	return time.Duration(ev.Duration).String()
}

// eventColor highlights the events worth looking at first.
func eventColor(ev *tracefile.Event) func(a ...interface{}) string {
	if r, ok := ev.Type.Reason(); ok {
		switch r {
		case tracefile.ReasonSignal:
			return color.New(color.FgRed, color.Bold).SprintFunc()
		case tracefile.ReasonBreakpoint:
			return color.New(color.FgMagenta).SprintFunc()
		default:
			return color.New(color.FgYellow).SprintFunc()
		}
	}
	if ev.Paired && ev.Result < 0 && ev.Result > -4096 {
		return color.New(color.FgRed).SprintFunc()
	}
	return fmt.Sprint
}

func printable(c byte) bool {
	return c == '\n' || c == '\t' || (c >= 0x20 && c < 0x7f)
}

// preview quotes the leading printable run of b.
func preview(b []byte, limit int) string {
	end := 0
	for end < len(b) && end < limit && b[end] != 0 && printable(b[end]) {
		end++
	}
	s := strconv.Quote(string(b[:end]))
	if end == limit && end < len(b) && b[end] != 0 {
		s += "..."
	}
	return s
}

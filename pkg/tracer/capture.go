//go:build linux

package tracer

import (
	"bytes"
	"debug/elf"
	"fmt"

	"go.uber.org/zap"

	"github.com/coretrace/coretrace/pkg/process"
	"github.com/coretrace/coretrace/pkg/syscalls"
	"github.com/coretrace/coretrace/pkg/tracefile"
	"github.com/coretrace/coretrace/pkg/vmem"
)

// record captures the state of p and appends it to the context stream as
// an event of type typ triggered by th.
func (s *Session) record(p *Process, th *thread, typ tracefile.EventType, extra []byte) {
	ev := s.capture(p, th)
	ev.Type = typ
	ev.Extra = extra
	ev.Timestamp = s.now()

	ok, err := p.streams.WriteEvent(ev)
	if err != nil {
		s.logger.Error("writing event", zap.Int("pid", p.Pid), zap.Stringer("type", typ), zap.Error(err))
		return
	}
	if !ok {
		capturesDropped(1)
		return
	}
	kind := eventKind(typ)
	size := float64(payloadSize(ev))
	eventsRecorded(1, kind)
	bytesCaptured(size)
	captureSize(size, kind)
}

// capture snapshots every stopped thread of p plus the interesting
// memory set.
func (s *Session) capture(p *Process, trigger *thread) *tracefile.Event {
	ev := &tracefile.Event{Tid: int32(trigger.tid)}
	for _, th := range p.sorted() {
		if !th.stopped {
			s.logger.Debug("thread running during capture; skipped", zap.Int("pid", p.Pid), zap.Int("tid", th.tid))
			threadsSkipped(1)
			continue
		}
		tc, stack, ok := s.threadContext(p, th)
		if !ok {
			continue
		}
		ev.Threads = append(ev.Threads, tc)
		if len(stack.Data) > 0 {
			ev.Regions = append(ev.Regions, stack)
		}
	}
	for _, seg := range p.interesting.Segments() {
		ev.Regions = append(ev.Regions, tracefile.Region{
			Start: seg.Start,
			Data:  s.read(p, trigger.tid, seg.Start, seg.Len()),
		})
	}
	return ev
}

func (s *Session) threadContext(p *Process, th *thread) (tracefile.ThreadContext, tracefile.Region, bool) {
	regs, err := s.regs(th)
	if err != nil {
		s.logger.Debug("reading registers", zap.Int("tid", th.tid), zap.Error(err))
		return tracefile.ThreadContext{}, tracefile.Region{}, false
	}
	tc := tracefile.ThreadContext{Tid: int32(th.tid), Regs: bytes.Clone(regs)}

	fp := make([]byte, s.arch.FPRegsSize())
	if n, err := s.pt.GetRegSet(th.tid, elf.NT_FPREGSET, fp); err != nil {
		s.logger.Debug("reading fp registers", zap.Int("tid", th.tid), zap.Error(err))
	} else {
		tc.FPRegs = fp[:n]
	}

	var stack tracefile.Region
	if w, ok := s.stackWindow(p, regs); ok {
		tc.Stack = w
		stack = tracefile.Region{Start: w.Start, Data: s.read(p, th.tid, w.Start, w.Len())}
	}

	if s.cfg.TLSSize > 0 {
		if tp, ok := s.arch.ThreadPointer(regs); ok && tp != 0 {
			start := tp - min(tp, s.cfg.TLSSize/2)
			tc.TLSAddr = start
			tc.TLS = s.read(p, th.tid, start, s.cfg.TLSSize)
		}
	}
	return tc, stack, true
}

// read copies n bytes of tracee memory, poisoning whatever could not be
// read.
func (s *Session) read(p *Process, tid int, addr, n uint64) []byte {
	buf := make([]byte, n)
	got, err := s.pt.ReadMemory(p.Pid, addr, buf)
	if uint64(got) < n {
		process.Pad(buf[got:])
		shortReads(1)
		s.logger.Warn("short read from tracee",
			zap.Int("tid", tid),
			zap.String("addr", fmt.Sprintf("%#x", addr)),
			zap.Uint64("want", n),
			zap.Int("got", got),
			zap.Error(err))
	}
	return buf
}

// readExact is read for pointer chasing, where padding would only
// produce bogus pointers.
func (s *Session) readExact(p *Process, addr uint64, n int) ([]byte, bool) {
	buf := make([]byte, n)
	got, err := s.pt.ReadMemory(p.Pid, addr, buf)
	if err != nil || got < n {
		return nil, false
	}
	return buf, true
}

const maxStringLen = 4096

func (s *Session) readString(p *Process, addr uint64) string {
	var out []byte
	chunk := make([]byte, 256)
	for len(out) < maxStringLen {
		got, _ := s.pt.ReadMemory(p.Pid, addr+uint64(len(out)), chunk)
		if got <= 0 {
			break
		}
		if i := bytes.IndexByte(chunk[:got], 0); i >= 0 {
			return string(append(out, chunk[:i]...))
		}
		out = append(out, chunk[:got]...)
	}
	return string(out)
}

// stackWindow is the part of the stack captured with a thread: from the
// page holding its stack pointer up by at most MaxStack, clipped to the
// mapping.
func (s *Session) stackWindow(p *Process, regs []byte) (vmem.Segment, bool) {
	sp := s.arch.StackPointer(regs)
	i := vmem.Find(p.mappings, sp)
	if i < 0 {
		return vmem.Segment{}, false
	}
	start := vmem.PageDown(sp)
	return vmem.Segment{Start: start, End: min(start+s.cfg.MaxStack, p.mappings[i].End)}, true
}

// stackWindows collects the stack window of every stopped thread of p.
func (s *Session) stackWindows(p *Process) []vmem.Segment {
	var out []vmem.Segment
	for _, th := range p.sorted() {
		if !th.stopped {
			continue
		}
		regs, err := s.regs(th)
		if err != nil {
			continue
		}
		if w, ok := s.stackWindow(p, regs); ok {
			out = append(out, w)
		}
	}
	return out
}

// queuePointers adds the memory behind nr's pointer arguments to the
// interesting set. The parts already inside a thread's stack window are
// left to the stack capture.
func (s *Session) queuePointers(p *Process, th *thread, nr int) {
	d := s.table.Lookup(nr)
	if d == nil {
		return
	}
	var windows []vmem.Segment
	for _, ptr := range d.Ptrs {
		addr := th.args[ptr.Arg]
		if addr == 0 {
			continue
		}
		size := s.cfg.MaxParam
		if ptr.LenArg != syscalls.NoLen {
			size = min(th.args[ptr.LenArg], maxRegion)
		}
		if size == 0 || addr+size < addr {
			continue
		}
		i := vmem.Find(p.mappings, addr)
		if i < 0 {
			continue
		}
		if windows == nil {
			windows = s.stackWindows(p)
		}
		end := min(addr+size, p.mappings[i].End)
		p.interesting.Add(vmem.Subtract(vmem.Segment{Start: addr, End: end}, windows)...)
	}
}

// queueModuleData adds every module's .data and .bss to the interesting
// set so globals end up in the core.
func (s *Session) queueModuleData(p *Process) {
	for _, m := range p.modules {
		for _, sec := range []struct {
			addr, size uint64
		}{{m.Data.Addr, m.Data.Size}, {m.Bss.Addr, m.Bss.Size}} {
			if sec.size == 0 {
				continue
			}
			start := m.Vaddr(sec.addr)
			i := vmem.Find(p.mappings, start)
			if i < 0 {
				continue
			}
			end := min(start+sec.size, p.mappings[i].End)
			p.interesting.Add(vmem.Segment{Start: start, End: end})
		}
	}
}

func payloadSize(ev *tracefile.Event) int {
	n := len(ev.Extra)
	for _, t := range ev.Threads {
		n += len(t.Regs) + len(t.FPRegs) + len(t.TLS)
	}
	for _, r := range ev.Regions {
		n += len(r.Data)
	}
	return n
}

func eventKind(t tracefile.EventType) string {
	switch {
	case t.IsEnter():
		return "enter"
	case t.IsExit():
		return "exit"
	}
	if r, ok := t.Reason(); ok {
		return r.String()
	}
	return "unknown"
}

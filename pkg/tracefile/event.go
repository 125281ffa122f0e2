package tracefile

import (
	"fmt"
	"strconv"

	"github.com/coretrace/coretrace/pkg/vmem"
)

// Event type encoding. A syscall enter is SyscallBase+nr, its exit the
// negation of that, and non-syscall reasons sit at ReasonBase+reason,
// above every syscall number.
const (
	SyscallBase = 0x100
	ReasonBase  = 0x1000
	maxSyscall  = ReasonBase - SyscallBase
)

type Reason int32

const (
	ReasonSignal Reason = iota + 1
	ReasonExec
	ReasonClone
	ReasonExit
	ReasonBreakpoint
	ReasonSeccomp
	ReasonPlatform
	ReasonAttach
)

var reasonNames = map[Reason]string{
	ReasonSignal:     "signal",
	ReasonExec:       "exec",
	ReasonClone:      "clone",
	ReasonExit:       "exit",
	ReasonBreakpoint: "breakpoint",
	ReasonSeccomp:    "seccomp",
	ReasonPlatform:   "platform",
	ReasonAttach:     "attach",
}

func (r Reason) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	return "reason_" + strconv.Itoa(int(r))
}

// EventType is the signed kind tag stored in every context record.
type EventType int32

func SyscallEnter(nr int) EventType { return EventType(SyscallBase + nr) }
func SyscallExit(nr int) EventType  { return -EventType(SyscallBase + nr) }
func ReasonEvent(r Reason) EventType { return EventType(ReasonBase + int32(r)) }

// Syscall decodes a syscall event into its number and direction.
func (t EventType) Syscall() (nr int, exit bool, ok bool) {
	v := int32(t)
	if v < 0 {
		v, exit = -v, true
	}
	if v < SyscallBase || v >= SyscallBase+maxSyscall {
		return 0, false, false
	}
	return int(v - SyscallBase), exit, true
}

func (t EventType) IsEnter() bool {
	_, exit, ok := t.Syscall()
	return ok && !exit
}

func (t EventType) IsExit() bool {
	_, exit, ok := t.Syscall()
	return ok && exit
}

// Reason returns the non-syscall reason carried by t.
func (t EventType) Reason() (Reason, bool) {
	if t < ReasonBase {
		return 0, false
	}
	return Reason(int32(t) - ReasonBase), true
}

func (t EventType) String() string {
	if nr, exit, ok := t.Syscall(); ok {
		if exit {
			return fmt.Sprintf("exit(%d)", nr)
		}
		return fmt.Sprintf("enter(%d)", nr)
	}
	if r, ok := t.Reason(); ok {
		return r.String()
	}
	return "type_" + strconv.Itoa(int(t))
}

// ThreadContext is one thread's state captured at an event.
type ThreadContext struct {
	Tid     int32
	Stack   vmem.Segment
	TLSAddr uint64
	Regs    []byte
	FPRegs  []byte
	TLS     []byte
}

// Region is a captured range of tracee memory.
type Region struct {
	Start uint64
	Data  []byte
}

func (r Region) Segment() vmem.Segment {
	return vmem.Segment{Start: r.Start, End: r.Start + uint64(len(r.Data))}
}

// Event is one record of the context stream.
type Event struct {
	Timestamp uint64
	Type      EventType
	Tid       int32
	Extra     []byte
	Threads   []ThreadContext
	Regions   []Region

	// Set by the reader.
	Index      int
	Paired     bool
	Peer       int
	Duration   uint64
	Result     int64
	HasPayload bool
}

// Encode frames the event as context stream blocks: header, extra, one
// block per thread and one per memory region.
func (e *Event) Encode() [][]byte {
	blocks := make([][]byte, 0, 2+len(e.Threads)+len(e.Regions))

	var hdr encoder
	hdr.i32(int32(e.Type))
	hdr.i32(e.Tid)
	hdr.u32(uint32(len(e.Threads)))
	hdr.u32(uint32(len(e.Regions)))
	blocks = append(blocks, hdr.b, e.Extra)

	for _, t := range e.Threads {
		var enc encoder
		enc.i32(t.Tid)
		enc.u64(t.Stack.Start)
		enc.u64(t.Stack.End)
		enc.u64(t.TLSAddr)
		enc.bytes(t.Regs)
		enc.bytes(t.FPRegs)
		enc.bytes(t.TLS)
		blocks = append(blocks, enc.b)
	}
	for _, r := range e.Regions {
		var enc encoder
		enc.u64(r.Start)
		enc.b = append(enc.b, r.Data...)
		blocks = append(blocks, enc.b)
	}
	return blocks
}

// decodeEvent parses context blocks. With payload false only the header
// and extra block are kept.
func decodeEvent(ts uint64, blocks [][]byte, payload bool) (Event, error) {
	ev := Event{Timestamp: ts, Peer: -1}
	if len(blocks) < 2 {
		return ev, fmt.Errorf("%w: %d blocks", ErrCorrupt, len(blocks))
	}

	hdr := decoder{b: blocks[0]}
	ev.Type = EventType(hdr.i32())
	ev.Tid = hdr.i32()
	nthreads := int(hdr.u32())
	nregions := int(hdr.u32())
	if hdr.err != nil {
		return ev, hdr.err
	}
	if len(blocks) != 2+nthreads+nregions {
		return ev, fmt.Errorf("%w: header says %d threads %d regions, record has %d blocks",
			ErrCorrupt, nthreads, nregions, len(blocks))
	}
	ev.Extra = append([]byte(nil), blocks[1]...)
	if !payload {
		return ev, nil
	}
	ev.HasPayload = true

	for _, b := range blocks[2 : 2+nthreads] {
		d := decoder{b: b}
		t := ThreadContext{Tid: d.i32()}
		t.Stack.Start = d.u64()
		t.Stack.End = d.u64()
		t.TLSAddr = d.u64()
		t.Regs = d.bytes()
		t.FPRegs = d.bytes()
		t.TLS = d.bytes()
		if d.err != nil {
			return ev, d.err
		}
		ev.Threads = append(ev.Threads, t)
	}
	for _, b := range blocks[2+nthreads:] {
		if len(b) < 8 {
			return ev, fmt.Errorf("%w: region block of %d bytes", ErrCorrupt, len(b))
		}
		ev.Regions = append(ev.Regions, Region{Start: le.Uint64(b), Data: append([]byte(nil), b[8:]...)})
	}
	return ev, nil
}

// Thread returns the captured context of tid.
func (e *Event) Thread(tid int32) (*ThreadContext, bool) {
	for i := range e.Threads {
		if e.Threads[i].Tid == tid {
			return &e.Threads[i], true
		}
	}
	return nil, false
}

// SyscallArgs decodes the argument extra payload of an enter event.
func (e *Event) SyscallArgs() ([6]uint64, bool) {
	var args [6]uint64
	if !e.Type.IsEnter() || len(e.Extra) < 48 {
		return args, false
	}
	for i := range args {
		args[i] = le.Uint64(e.Extra[i*8:])
	}
	return args, true
}

// EnterExtra is the extra payload of a syscall enter event.
func EnterExtra(args [6]uint64) []byte {
	var enc encoder
	for _, a := range args {
		enc.u64(a)
	}
	return enc.b
}

// ExitExtra is the extra payload of a syscall exit event.
func ExitExtra(result int64) []byte {
	var enc encoder
	enc.i64(result)
	return enc.b
}

// ExitResult decodes the result of an exit event.
func (e *Event) ExitResult() (int64, bool) {
	if !e.Type.IsExit() || len(e.Extra) < 8 {
		return 0, false
	}
	return int64(le.Uint64(e.Extra)), true
}

// SigInfo is the subset of siginfo_t kept with signal events.
type SigInfo struct {
	Signo int32
	Code  int32
	Errno int32
	Addr  uint64
}

func (s SigInfo) Encode() []byte {
	var enc encoder
	enc.i32(s.Signo)
	enc.i32(s.Code)
	enc.i32(s.Errno)
	enc.u64(s.Addr)
	return enc.b
}

// SigInfo decodes the extra payload of a signal event.
func (e *Event) SigInfo() (SigInfo, bool) {
	if r, ok := e.Type.Reason(); !ok || r != ReasonSignal {
		return SigInfo{}, false
	}
	d := decoder{b: e.Extra}
	s := SigInfo{Signo: d.i32(), Code: d.i32(), Errno: d.i32(), Addr: d.u64()}
	return s, d.err == nil
}

// CloneInfo is the extra payload of a clone event.
type CloneInfo struct {
	Child  int32
	Thread bool
}

func (c CloneInfo) Encode() []byte {
	var enc encoder
	enc.i32(c.Child)
	if c.Thread {
		enc.u8(1)
	} else {
		enc.u8(0)
	}
	return enc.b
}

func (e *Event) CloneInfo() (CloneInfo, bool) {
	if r, ok := e.Type.Reason(); !ok || r != ReasonClone {
		return CloneInfo{}, false
	}
	d := decoder{b: e.Extra}
	c := CloneInfo{Child: d.i32(), Thread: d.u8() == 1}
	return c, d.err == nil
}

// ExitStatus is the extra payload of an exit event.
func ExitStatus(status int32) []byte {
	var enc encoder
	enc.i32(status)
	return enc.b
}

// BreakpointExtra records the address and symbol of a hit breakpoint.
func BreakpointExtra(addr uint64, symbol string) []byte {
	var enc encoder
	enc.u64(addr)
	enc.str(symbol)
	return enc.b
}

// ExitStatus decodes the raw wait status carried by an exit event.
func (e *Event) ExitStatus() (int32, bool) {
	if r, ok := e.Type.Reason(); !ok || r != ReasonExit {
		return 0, false
	}
	d := decoder{b: e.Extra}
	st := d.i32()
	return st, d.err == nil
}

// Breakpoint decodes the address and symbol of a breakpoint event.
func (e *Event) Breakpoint() (addr uint64, symbol string, ok bool) {
	if r, isReason := e.Type.Reason(); !isReason || r != ReasonBreakpoint {
		return 0, "", false
	}
	d := decoder{b: e.Extra}
	addr = d.u64()
	symbol = d.str()
	return addr, symbol, d.err == nil
}

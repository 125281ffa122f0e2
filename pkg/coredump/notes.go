package coredump

import (
	"debug/elf"
	"encoding/binary"
	"strings"

	"github.com/coretrace/coretrace/pkg/arch"
	"github.com/coretrace/coretrace/pkg/tracefile"
	"github.com/coretrace/coretrace/pkg/vmem"
)

// Note types missing from debug/elf.
const (
	ntAuxv elf.NType = 6
	ntFile elf.NType = 0x46494c45
)

const noteName = "CORE"

var le = binary.LittleEndian

type note struct {
	typ  elf.NType
	desc []byte
}

func align4(n int) int {
	return (n + 3) &^ 3
}

func appendNote(b []byte, n note) []byte {
	b = le.AppendUint32(b, uint32(len(noteName)+1))
	b = le.AppendUint32(b, uint32(len(n.desc)))
	b = le.AppendUint32(b, uint32(n.typ))
	b = append(b, noteName...)
	b = append(b, make([]byte, align4(len(noteName)+1)-len(noteName))...)
	b = append(b, n.desc...)
	return append(b, make([]byte, align4(len(n.desc))-len(n.desc))...)
}

// appendWord appends a native long.
func appendWord(b []byte, class elf.Class, v uint64) []byte {
	if class == elf.ELFCLASS64 {
		return le.AppendUint64(b, v)
	}
	return le.AppendUint32(b, uint32(v))
}

// fit pads or truncates a register set to its note size.
func fit(regs []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, regs)
	return out
}

type procIDs struct {
	pid, ppid, pgrp, sid int32
}

// prstatus lays out struct elf_prstatus: siginfo, cursig, pending and held
// masks, ids, four timevals, pr_reg and pr_fpvalid.
func prstatus(a arch.Arch, t *tracefile.ThreadContext, ids procIDs, sig *tracefile.SigInfo) []byte {
	class := a.Class()
	var b []byte
	if sig != nil {
		b = le.AppendUint32(b, uint32(sig.Signo))
		b = le.AppendUint32(b, uint32(sig.Code))
		b = le.AppendUint32(b, uint32(sig.Errno))
		b = le.AppendUint16(b, uint16(sig.Signo))
	} else {
		b = append(b, make([]byte, 14)...)
	}
	b = append(b, 0, 0)
	b = appendWord(b, class, 0)
	b = appendWord(b, class, 0)
	b = le.AppendUint32(b, uint32(t.Tid))
	b = le.AppendUint32(b, uint32(ids.ppid))
	b = le.AppendUint32(b, uint32(ids.pgrp))
	b = le.AppendUint32(b, uint32(ids.sid))
	for range 8 {
		b = appendWord(b, class, 0)
	}
	b = append(b, fit(t.Regs, a.RegsSize())...)

	var fpvalid uint32
	if len(t.FPRegs) > 0 {
		fpvalid = 1
	}
	b = le.AppendUint32(b, fpvalid)
	if class == elf.ELFCLASS64 {
		b = append(b, 0, 0, 0, 0)
	}
	return b
}

const (
	fnameLen  = 16
	psargsLen = 80
)

func fixedString(s string, n int) []byte {
	out := make([]byte, n)
	copy(out[:n-1], s)
	return out
}

// prpsinfo lays out struct elf_prpsinfo. The 64-bit variant carries a
// long pr_flag and 32-bit ids, the 32-bit one 16-bit ids.
func prpsinfo(class elf.Class, p tracefile.ProcInfo, cmdline []string) []byte {
	const states = "RSDTZW"
	num := strings.IndexByte(states, p.State)
	if num < 0 {
		num = 0
	}
	sname := p.State
	if sname == 0 {
		sname = 'R'
	}
	var zombie byte
	if sname == 'Z' {
		zombie = 1
	}

	b := []byte{byte(num), sname, zombie, byte(p.Nice)}
	if class == elf.ELFCLASS64 {
		b = append(b, 0, 0, 0, 0)
		b = le.AppendUint64(b, p.Flags)
		b = le.AppendUint32(b, p.Uid)
		b = le.AppendUint32(b, p.Gid)
	} else {
		b = le.AppendUint32(b, uint32(p.Flags))
		b = le.AppendUint16(b, uint16(p.Uid))
		b = le.AppendUint16(b, uint16(p.Gid))
	}
	b = le.AppendUint32(b, uint32(p.Pid))
	b = le.AppendUint32(b, uint32(p.PPid))
	b = le.AppendUint32(b, uint32(p.Pgrp))
	b = le.AppendUint32(b, uint32(p.Session))
	b = append(b, fixedString(p.Comm, fnameLen)...)
	return append(b, fixedString(strings.Join(cmdline, " "), psargsLen)...)
}

// fileNote lays out NT_FILE: count, page size, one start/end/page offset
// triple per file mapping, then the NUL separated paths.
func fileNote(class elf.Class, maps []vmem.Mapping) []byte {
	var files []vmem.Mapping
	for _, m := range maps {
		if strings.HasPrefix(m.Path, "/") {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil
	}

	var b []byte
	b = appendWord(b, class, uint64(len(files)))
	b = appendWord(b, class, vmem.PageSize)
	for _, m := range files {
		b = appendWord(b, class, m.Start)
		b = appendWord(b, class, m.End)
		b = appendWord(b, class, m.Offset/vmem.PageSize)
	}
	for _, m := range files {
		b = append(b, m.Path...)
		b = append(b, 0)
	}
	return b
}

// orderThreads puts the thread that triggered the event first.
func orderThreads(threads []tracefile.ThreadContext, tid int32) []tracefile.ThreadContext {
	out := make([]tracefile.ThreadContext, 0, len(threads))
	for _, t := range threads {
		if t.Tid == tid {
			out = append(out, t)
		}
	}
	for _, t := range threads {
		if t.Tid != tid {
			out = append(out, t)
		}
	}
	return out
}

// buildNotes assembles the PT_NOTE payload: process info, auxv, a status
// and FP register note per thread, and the file table.
func buildNotes(a arch.Arch, ev *tracefile.Event, static *tracefile.StaticInfo, maps []vmem.Mapping) []byte {
	class := a.Class()
	p := static.Proc
	ids := procIDs{pid: p.Pid, ppid: p.PPid, pgrp: p.Pgrp, sid: p.Session}

	var sig *tracefile.SigInfo
	if si, ok := ev.SigInfo(); ok {
		sig = &si
	}

	var b []byte
	b = appendNote(b, note{typ: elf.NT_PRPSINFO, desc: prpsinfo(class, p, static.CmdLine)})
	b = appendNote(b, note{typ: ntAuxv, desc: static.Auxv})
	for i, t := range orderThreads(ev.Threads, ev.Tid) {
		var s *tracefile.SigInfo
		if i == 0 && t.Tid == ev.Tid {
			s = sig
		}
		b = appendNote(b, note{typ: elf.NT_PRSTATUS, desc: prstatus(a, &t, ids, s)})
		b = appendNote(b, note{typ: elf.NT_FPREGSET, desc: fit(t.FPRegs, a.FPRegsSize())})
	}
	if files := fileNote(class, maps); files != nil {
		b = appendNote(b, note{typ: ntFile, desc: files})
	}
	return b
}

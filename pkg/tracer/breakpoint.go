//go:build linux

package tracer

import (
	"debug/elf"
	"fmt"

	"go.uber.org/zap"

	"github.com/coretrace/coretrace/pkg/binutils"
	"github.com/coretrace/coretrace/pkg/tracefile"
)

type breakpoint struct {
	addr   uint64
	orig   []byte
	symbol string
}

// installBreakpoints plants a trap at the break-at function in every
// module not searched yet.
func (s *Session) installBreakpoints(p *Process) {
	if s.cfg.BreakAt == "" || p.breakHit {
		return
	}
	root := s.procfs.Root(p.Pid)
	trap := s.arch.Breakpoint()
	for _, m := range p.modules {
		if p.scanned.Contains(m.Path) {
			continue
		}
		p.scanned.Add(m.Path)

		sym, err := lookupFunction(m.Path, root, s.cfg.BreakAt)
		if err != nil {
			continue
		}
		addr := m.Vaddr(sym.Value)
		if _, ok := p.breakpoints[addr]; ok {
			continue
		}
		orig, ok := s.readExact(p, addr, len(trap))
		if !ok {
			s.logger.Warn("reading breakpoint site", zap.Int("pid", p.Pid), zap.String("addr", fmt.Sprintf("%#x", addr)))
			continue
		}
		if n, err := s.pt.WriteMemory(p.Pid, addr, trap); err != nil || n != len(trap) {
			s.logger.Warn("planting breakpoint", zap.Int("pid", p.Pid), zap.String("addr", fmt.Sprintf("%#x", addr)), zap.Error(err))
			continue
		}
		p.breakpoints[addr] = &breakpoint{addr: addr, orig: orig, symbol: s.cfg.BreakAt}
		s.logger.Info("breakpoint planted", zap.Int("pid", p.Pid), zap.String("symbol", s.cfg.BreakAt),
			zap.String("module", m.Path), zap.String("addr", fmt.Sprintf("%#x", addr)))
	}
}

func lookupFunction(path, root, name string) (elf.Symbol, error) {
	e, err := binutils.NewElf(path, root)
	if err != nil {
		return elf.Symbol{}, err
	}
	defer e.Close()
	return e.LookupFunction(name)
}

// onTrap handles a SIGTRAP at one of our breakpoints: every planted trap
// is removed, the PC is rewound, and capture starts.
func (s *Session) onTrap(th *thread) bool {
	p := th.proc
	if len(p.breakpoints) == 0 {
		return false
	}
	regs, err := s.regs(th)
	if err != nil {
		return false
	}
	addr := s.arch.PC(regs) - s.arch.BreakpointPCAdjust()
	bp, ok := p.breakpoints[addr]
	if !ok {
		return false
	}

	for _, b := range p.breakpoints {
		if _, err := s.pt.WriteMemory(p.Pid, b.addr, b.orig); err != nil {
			s.logger.Warn("restoring breakpoint site", zap.Int("pid", p.Pid), zap.String("addr", fmt.Sprintf("%#x", b.addr)), zap.Error(err))
		}
	}
	clear(p.breakpoints)

	s.arch.SetPC(regs, addr)
	if err := s.pt.SetRegSet(th.tid, elf.NT_PRSTATUS, regs); err != nil {
		s.logger.Error("rewinding pc after breakpoint", zap.Int("tid", th.tid), zap.Error(err))
	}

	p.breakHit = true
	p.capture = true
	s.logger.Info("breakpoint hit; capture enabled", zap.Int("pid", p.Pid), zap.Int("tid", th.tid), zap.String("symbol", bp.symbol))
	s.record(p, th, tracefile.ReasonEvent(tracefile.ReasonBreakpoint), tracefile.BreakpointExtra(addr, bp.symbol))
	return true
}

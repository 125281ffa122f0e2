//go:build linux

package tracer

import (
	"debug/elf"

	"go.uber.org/zap"

	"github.com/coretrace/coretrace/pkg/binutils"
	"github.com/coretrace/coretrace/pkg/process"
	"github.com/coretrace/coretrace/pkg/tracefile"
	"github.com/coretrace/coretrace/pkg/vmem"
)

const maxLinkMaps = 1024

// rescan rebuilds the mappings and modules of p and appends a snapshot
// to its maps stream.
func (s *Session) rescan(p *Process) {
	p.rescanDue = false
	mappings, err := s.procfs.Maps(p.Pid)
	if err != nil {
		s.logger.Warn("reading maps", zap.Int("pid", p.Pid), zap.Error(err))
		return
	}
	p.mappings = mappings
	if p.static || p.exe == "" {
		if exe, err := s.procfs.Executable(p.Pid); err == nil {
			p.exe = exe
		}
	}
	p.modules = s.modules(p)

	snap := &tracefile.MapsSnapshot{
		Timestamp: s.now(),
		Mappings:  mappings,
		Modules:   p.modules,
		Debug:     s.debugInfo(p),
	}
	if p.static {
		snap.Static = s.staticInfo(p)
		p.static = false
	}
	if err := p.streams.WriteSnapshot(snap); err != nil {
		s.logger.Error("writing maps snapshot", zap.Int("pid", p.Pid), zap.Error(err))
		return
	}
	mapsRescans(1)
}

// modules identifies every file mapped at offset zero.
func (s *Session) modules(p *Process) []tracefile.Module {
	root := s.procfs.Root(p.Pid)
	seen := map[string]bool{}
	var out []tracefile.Module
	for _, m := range p.mappings {
		if m.Anonymous() || m.Pseudo() || m.Offset != 0 || seen[m.Path] || s.rejected.Contains(m.Path) {
			continue
		}
		seen[m.Path] = true
		info, err := s.cache.Get(m.Path, root)
		if err != nil {
			s.rejected.Add(m.Path)
			s.logger.Debug("mapped file is not a module", zap.String("path", m.Path), zap.Error(err))
			continue
		}
		out = append(out, tracefile.Module{
			ModuleInfo: *info,
			Base:       m.Start - vmem.PageDown(info.FirstLoadVaddr),
		})
	}
	return out
}

func (s *Session) mainModule(p *Process) (tracefile.Module, bool) {
	for _, m := range p.modules {
		if m.Path == p.exe {
			return m, true
		}
	}
	if len(p.modules) > 0 {
		return p.modules[0], true
	}
	return tracefile.Module{}, false
}

// debugInfo follows the executable's DT_DEBUG entry to the loader's
// r_debug and walks its link map list. A static executable, or one whose
// loader has not filled DT_DEBUG yet, yields no link maps.
func (s *Session) debugInfo(p *Process) tracefile.DebugInfo {
	var di tracefile.DebugInfo
	exe, ok := s.mainModule(p)
	if !ok || exe.DynamicVaddr == 0 || exe.DynamicSize == 0 {
		return di
	}
	class := s.arch.Class()

	di.DynamicAddr = exe.Vaddr(exe.DynamicVaddr)
	dyn, ok := s.readExact(p, di.DynamicAddr, int(exe.DynamicSize))
	if !ok {
		s.logger.Debug("reading _DYNAMIC", zap.Int("pid", p.Pid), zap.Uint64("addr", di.DynamicAddr))
		return di
	}
	di.Dynamic = dyn

	slot := binutils.DynamicSlot(dyn, class, elf.DT_DEBUG)
	if slot < 0 {
		return di
	}
	di.DTDebugSlot = di.DynamicAddr + uint64(slot)
	for _, e := range binutils.ParseDynamic(dyn, class) {
		if e.Tag == elf.DT_DEBUG {
			di.RDebugAddr = e.Val
			break
		}
	}
	if di.RDebugAddr == 0 {
		return di
	}

	b, ok := s.readExact(p, di.RDebugAddr, binutils.RDebugSize(class))
	if !ok {
		return di
	}
	rd, ok := binutils.DecodeRDebug(b, class)
	if !ok {
		return di
	}
	di.LdBase = rd.LdBase

	for addr := rd.Map; addr != 0 && len(di.LinkMaps) < maxLinkMaps; {
		b, ok := s.readExact(p, addr, binutils.LinkMapSize(class))
		if !ok {
			break
		}
		lm, nameAddr, ok := binutils.DecodeLinkMap(b, class)
		if !ok {
			break
		}
		if nameAddr != 0 {
			lm.Name = s.readString(p, nameAddr)
		}
		di.LinkMaps = append(di.LinkMaps, lm)
		addr = lm.Next
	}
	return di
}

// staticInfo gathers what only changes across exec.
func (s *Session) staticInfo(p *Process) *tracefile.StaticInfo {
	si := &tracefile.StaticInfo{Arch: s.arch.Name(), Class: s.arch.Class(), Exe: p.exe}
	log := s.logger.With(zap.Int("pid", p.Pid))

	var err error
	if si.Auxv, err = s.procfs.Auxv(p.Pid); err != nil {
		log.Debug("reading auxv", zap.Error(err))
	}
	if si.CmdLine, err = s.procfs.CmdLine(p.Pid); err != nil {
		log.Debug("reading cmdline", zap.Error(err))
	}
	if si.Environ, err = s.procfs.Environ(p.Pid); err != nil {
		log.Debug("reading environ", zap.Error(err))
	}

	vdso := process.ParseAuxv(si.Auxv, s.arch.PtrSize())[process.AT_SYSINFO_EHDR]
	for _, m := range p.mappings {
		if m.IsVDSO() || (vdso != 0 && m.Start == vdso) {
			si.VDSOAddr = m.Start
			si.VDSO = s.read(p, p.Pid, m.Start, m.Len())
			break
		}
	}

	si.Proc.Pid = int32(p.Pid)
	if st, err := s.procfs.Stat(p.Pid); err != nil {
		log.Debug("reading stat", zap.Error(err))
	} else {
		si.Proc.PPid = int32(st.PPid)
		si.Proc.Pgrp = int32(st.Pgrp)
		si.Proc.Session = int32(st.Session)
		si.Proc.State = st.State
		si.Proc.Nice = int8(st.Nice)
		si.Proc.Flags = st.Flags
		si.Proc.Comm = st.Comm
	}
	if st, err := s.procfs.Status(p.Pid); err != nil {
		log.Debug("reading status", zap.Error(err))
	} else {
		si.Proc.Uid = uint32(st.Uid)
		si.Proc.Gid = uint32(st.Gid)
	}
	return si
}

package tracefile

import (
	"debug/elf"
	"fmt"

	"github.com/coretrace/coretrace/pkg/binutils"
	"github.com/coretrace/coretrace/pkg/vmem"
)

// Module is a loaded module: its identity plus the load bias observed in
// the process.
type Module struct {
	binutils.ModuleInfo
	Base uint64
}

// Vaddr translates a link-time address of the module to a runtime one.
func (m Module) Vaddr(linkAddr uint64) uint64 {
	return m.Base + linkAddr
}

// DebugInfo is the dynamic loader state found through DT_DEBUG.
type DebugInfo struct {
	RDebugAddr  uint64
	DTDebugSlot uint64
	DynamicAddr uint64
	Dynamic     []byte
	LdBase      uint64
	LinkMaps    []binutils.LinkMap
}

// ProcInfo feeds the core file's NT_PRPSINFO note.
type ProcInfo struct {
	Pid     int32
	PPid    int32
	Pgrp    int32
	Session int32
	Uid     uint32
	Gid     uint32
	State   byte
	Nice    int8
	Flags   uint64
	Comm    string
}

// StaticInfo changes only across exec and is recorded once per image.
type StaticInfo struct {
	Arch     string
	Class    elf.Class
	Exe      string
	Auxv     []byte
	CmdLine  []string
	Environ  []string
	VDSOAddr uint64
	VDSO     []byte
	Proc     ProcInfo
}

// MapsSnapshot is one record of the maps stream.
type MapsSnapshot struct {
	Timestamp uint64
	Mappings  []vmem.Mapping
	Modules   []Module
	Debug     DebugInfo
	Static    *StaticInfo
}

// Complete reports whether the snapshot carries loader debug info for at
// least one module.
func (s *MapsSnapshot) Complete() bool {
	return len(s.Modules) > 0 && len(s.Debug.LinkMaps) > 0
}

const flagStatic = 1

// Encode frames the snapshot as maps stream blocks: header, mappings,
// modules, debug info and, when present, static info.
func (s *MapsSnapshot) Encode() [][]byte {
	var hdr encoder
	hdr.u32(uint32(len(s.Mappings)))
	hdr.u32(uint32(len(s.Modules)))
	var flags uint32
	if s.Static != nil {
		flags |= flagStatic
	}
	hdr.u32(flags)

	var maps encoder
	for _, m := range s.Mappings {
		maps.u64(m.Start)
		maps.u64(m.End)
		maps.u8(uint8(m.Perm))
		maps.u64(m.Offset)
		maps.u64(m.Inode)
		maps.str(m.Path)
	}

	var mods encoder
	for _, m := range s.Modules {
		mods.str(m.Path)
		mods.u8(uint8(m.Kind))
		mods.str(m.ID)
		mods.u64(m.Base)
		mods.u16(uint16(m.Type))
		mods.u16(uint16(m.Machine))
		mods.u8(uint8(m.Class))
		for _, sec := range []binutils.Section{m.Data, m.Bss} {
			mods.u64(sec.Offset)
			mods.u64(sec.Addr)
			mods.u64(sec.Size)
		}
		mods.u64(m.RWLoadOffset)
		mods.u64(m.RWLoadVaddr)
		mods.u64(m.FirstLoadVaddr)
		mods.u64(m.DynamicVaddr)
		mods.u64(m.DynamicSize)
		mods.strs(m.Needed)
	}

	var dbg encoder
	dbg.u64(s.Debug.RDebugAddr)
	dbg.u64(s.Debug.DTDebugSlot)
	dbg.u64(s.Debug.DynamicAddr)
	dbg.bytes(s.Debug.Dynamic)
	dbg.u64(s.Debug.LdBase)
	dbg.u32(uint32(len(s.Debug.LinkMaps)))
	for _, lm := range s.Debug.LinkMaps {
		dbg.u64(lm.Addr)
		dbg.u64(lm.Dynamic)
		dbg.bytes([]byte(lm.Name))
	}

	blocks := [][]byte{hdr.b, maps.b, mods.b, dbg.b}
	if st := s.Static; st != nil {
		var meta encoder
		meta.str(st.Arch)
		meta.u8(uint8(st.Class))
		meta.bytes([]byte(st.Exe))
		meta.u64(st.VDSOAddr)
		p := st.Proc
		meta.i32(p.Pid)
		meta.i32(p.PPid)
		meta.i32(p.Pgrp)
		meta.i32(p.Session)
		meta.u32(p.Uid)
		meta.u32(p.Gid)
		meta.u8(p.State)
		meta.u8(uint8(p.Nice))
		meta.u64(p.Flags)
		meta.str(p.Comm)

		var cmd, env encoder
		cmd.strs(st.CmdLine)
		env.strs(st.Environ)
		blocks = append(blocks, meta.b, st.Auxv, cmd.b, env.b, st.VDSO)
	}
	return blocks
}

func decodeSnapshot(ts uint64, blocks [][]byte) (MapsSnapshot, error) {
	s := MapsSnapshot{Timestamp: ts}
	if len(blocks) < 4 {
		return s, fmt.Errorf("%w: maps record has %d blocks", ErrCorrupt, len(blocks))
	}

	hdr := decoder{b: blocks[0]}
	nmaps, nmods, flags := hdr.u32(), hdr.u32(), hdr.u32()
	if hdr.err != nil {
		return s, hdr.err
	}

	maps := decoder{b: blocks[1]}
	for range nmaps {
		var m vmem.Mapping
		m.Start = maps.u64()
		m.End = maps.u64()
		m.Perm = vmem.Perm(maps.u8())
		m.Offset = maps.u64()
		m.Inode = maps.u64()
		m.Path = maps.str()
		if maps.err != nil {
			return s, maps.err
		}
		s.Mappings = append(s.Mappings, m)
	}

	mods := decoder{b: blocks[2]}
	for range nmods {
		var m Module
		m.Path = mods.str()
		m.Kind = binutils.IDKind(mods.u8())
		m.ID = mods.str()
		m.Base = mods.u64()
		m.Type = elf.Type(mods.u16())
		m.Machine = elf.Machine(mods.u16())
		m.Class = elf.Class(mods.u8())
		for _, sec := range []*binutils.Section{&m.Data, &m.Bss} {
			sec.Offset = mods.u64()
			sec.Addr = mods.u64()
			sec.Size = mods.u64()
		}
		m.RWLoadOffset = mods.u64()
		m.RWLoadVaddr = mods.u64()
		m.FirstLoadVaddr = mods.u64()
		m.DynamicVaddr = mods.u64()
		m.DynamicSize = mods.u64()
		m.Needed = mods.strs()
		if mods.err != nil {
			return s, mods.err
		}
		s.Modules = append(s.Modules, m)
	}

	dbg := decoder{b: blocks[3]}
	s.Debug.RDebugAddr = dbg.u64()
	s.Debug.DTDebugSlot = dbg.u64()
	s.Debug.DynamicAddr = dbg.u64()
	s.Debug.Dynamic = dbg.bytes()
	s.Debug.LdBase = dbg.u64()
	nlm := dbg.u32()
	for i := uint32(0); i < nlm && dbg.err == nil; i++ {
		var lm binutils.LinkMap
		lm.Addr = dbg.u64()
		lm.Dynamic = dbg.u64()
		lm.Name = string(dbg.bytes())
		s.Debug.LinkMaps = append(s.Debug.LinkMaps, lm)
	}
	if dbg.err != nil {
		return s, dbg.err
	}

	if flags&flagStatic == 0 {
		return s, nil
	}
	if len(blocks) != 9 {
		return s, fmt.Errorf("%w: static maps record has %d blocks", ErrCorrupt, len(blocks))
	}

	st := &StaticInfo{}
	meta := decoder{b: blocks[4]}
	st.Arch = meta.str()
	st.Class = elf.Class(meta.u8())
	st.Exe = string(meta.bytes())
	st.VDSOAddr = meta.u64()
	st.Proc.Pid = meta.i32()
	st.Proc.PPid = meta.i32()
	st.Proc.Pgrp = meta.i32()
	st.Proc.Session = meta.i32()
	st.Proc.Uid = meta.u32()
	st.Proc.Gid = meta.u32()
	st.Proc.State = meta.u8()
	st.Proc.Nice = int8(meta.u8())
	st.Proc.Flags = meta.u64()
	st.Proc.Comm = meta.str()
	if meta.err != nil {
		return s, meta.err
	}

	st.Auxv = append([]byte(nil), blocks[5]...)
	cmd := decoder{b: blocks[6]}
	st.CmdLine = cmd.strs()
	env := decoder{b: blocks[7]}
	st.Environ = env.strs()
	if cmd.err != nil || env.err != nil {
		return s, fmt.Errorf("%w: static strings", ErrCorrupt)
	}
	st.VDSO = append([]byte(nil), blocks[8]...)
	s.Static = st
	return s, nil
}

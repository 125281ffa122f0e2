package coredump

import (
	"bufio"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/coretrace/coretrace/pkg/arch"
	"github.com/coretrace/coretrace/pkg/vmem"
)

// maxProgs is PN_XNUM; larger counts need the section header escape.
const maxProgs = 0xffff

// image is a fully laid out core file.
type image struct {
	arch  arch.Arch
	notes []byte
	loads []load

	phoff   uint64
	noteOff uint64
	offsets []uint64
	size    uint64
}

func newImage(a arch.Arch, notes []byte, loads []load) (*image, error) {
	if len(loads)+1 >= maxProgs {
		return nil, newError(CodeProgramHeaders, fmt.Errorf("%d program headers exceed the ELF limit", len(loads)+1))
	}
	im := &image{arch: a, notes: notes, loads: loads}
	im.layout()
	return im, nil
}

func (im *image) is64() bool {
	return im.arch.Class() == elf.ELFCLASS64
}

func (im *image) headerSizes() (ehsize, phentsize uint64) {
	if im.is64() {
		return 64, 56
	}
	return 52, 32
}

// layout assigns file offsets: headers, notes, then every backed load
// at an offset congruent to its address modulo the page size.
func (im *image) layout() {
	ehsize, phentsize := im.headerSizes()
	im.phoff = ehsize
	im.noteOff = im.phoff + uint64(len(im.loads)+1)*phentsize

	off := vmem.PageUp(im.noteOff + uint64(len(im.notes)))
	im.offsets = make([]uint64, len(im.loads))
	for i, l := range im.loads {
		if len(l.Data) == 0 {
			continue
		}
		off += (l.Start - off) % vmem.PageSize
		im.offsets[i] = off
		off += uint64(len(l.Data))
	}
	im.size = off
}

func progFlags(p vmem.Perm) elf.ProgFlag {
	var f elf.ProgFlag
	if p&vmem.Read != 0 {
		f |= elf.PF_R
	}
	if p&vmem.Write != 0 {
		f |= elf.PF_W
	}
	if p&vmem.Exec != 0 {
		f |= elf.PF_X
	}
	return f
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

func (c *countingWriter) padTo(off uint64) error {
	if off < c.n {
		return fmt.Errorf("layout overlap: at %d, want %d", c.n, off)
	}
	_, err := c.Write(make([]byte, off-c.n))
	return err
}

// writeTo emits the image. Failures carry the code of the stage that
// failed.
func (im *image) writeTo(dst io.Writer) error {
	bw := bufio.NewWriterSize(dst, 1<<20)
	w := &countingWriter{w: bw}

	if err := im.writeHeader(w); err != nil {
		return newError(CodeHeader, err)
	}
	if err := im.writeProgs(w); err != nil {
		return newError(CodeProgramHeaders, err)
	}
	if _, err := w.Write(im.notes); err != nil {
		return newError(CodeNotes, err)
	}
	for i, l := range im.loads {
		if len(l.Data) == 0 {
			continue
		}
		if err := w.padTo(im.offsets[i]); err != nil {
			return newError(CodeLoadData, err)
		}
		if _, err := w.Write(l.Data); err != nil {
			return newError(CodeLoadData, err)
		}
	}
	if err := w.padTo(im.size); err != nil {
		return newError(CodeLoadData, err)
	}
	if err := bw.Flush(); err != nil {
		return newError(CodeLoadData, err)
	}
	return nil
}

func (im *image) ident() [elf.EI_NIDENT]byte {
	var id [elf.EI_NIDENT]byte
	copy(id[:], elf.ELFMAG)
	id[elf.EI_CLASS] = byte(im.arch.Class())
	id[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	id[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	id[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)
	return id
}

func (im *image) writeHeader(w io.Writer) error {
	ehsize, phentsize := im.headerSizes()
	phnum := uint16(len(im.loads) + 1)
	if im.is64() {
		return binary.Write(w, le, elf.Header64{
			Ident:     im.ident(),
			Type:      uint16(elf.ET_CORE),
			Machine:   uint16(im.arch.Machine()),
			Version:   uint32(elf.EV_CURRENT),
			Phoff:     im.phoff,
			Flags:     im.arch.Flags(),
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     phnum,
		})
	}
	return binary.Write(w, le, elf.Header32{
		Ident:     im.ident(),
		Type:      uint16(elf.ET_CORE),
		Machine:   uint16(im.arch.Machine()),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     uint32(im.phoff),
		Flags:     im.arch.Flags(),
		Ehsize:    uint16(ehsize),
		Phentsize: uint16(phentsize),
		Phnum:     phnum,
	})
}

type progHeader struct {
	typ    elf.ProgType
	flags  elf.ProgFlag
	off    uint64
	vaddr  uint64
	filesz uint64
	memsz  uint64
	align  uint64
}

func (im *image) progs() []progHeader {
	ph := make([]progHeader, 0, len(im.loads)+1)
	ph = append(ph, progHeader{
		typ:    elf.PT_NOTE,
		off:    im.noteOff,
		filesz: uint64(len(im.notes)),
		align:  4,
	})
	for i, l := range im.loads {
		ph = append(ph, progHeader{
			typ:    elf.PT_LOAD,
			flags:  progFlags(l.Perm),
			off:    im.offsets[i],
			vaddr:  l.Start,
			filesz: uint64(len(l.Data)),
			memsz:  l.Len(),
			align:  vmem.PageSize,
		})
	}
	return ph
}

func (im *image) writeProgs(w io.Writer) error {
	for _, p := range im.progs() {
		var v any
		if im.is64() {
			v = elf.Prog64{
				Type:   uint32(p.typ),
				Flags:  uint32(p.flags),
				Off:    p.off,
				Vaddr:  p.vaddr,
				Filesz: p.filesz,
				Memsz:  p.memsz,
				Align:  p.align,
			}
		} else {
			v = elf.Prog32{
				Type:   uint32(p.typ),
				Off:    uint32(p.off),
				Vaddr:  uint32(p.vaddr),
				Filesz: uint32(p.filesz),
				Memsz:  uint32(p.memsz),
				Flags:  uint32(p.flags),
				Align:  uint32(p.align),
			}
		}
		if err := binary.Write(w, le, v); err != nil {
			return err
		}
	}
	return nil
}

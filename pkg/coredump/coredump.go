// Package coredump synthesizes ELF core files from recorded traces.
package coredump

import (
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/coretrace/coretrace/pkg/arch"
	"github.com/coretrace/coretrace/pkg/binutils"
	"github.com/coretrace/coretrace/pkg/telemetry"
	"github.com/coretrace/coretrace/pkg/tracefile"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// LinkMapBase is where the replacement r_debug and link_map list are
// placed in the synthesized address space.
const LinkMapBase = 4096

var tracer = telemetry.Tracer()

var coresGenerated = telemetry.Counter("coretrace_cores_generated",
	telemetry.WithDescription("Core files synthesized from traces, by result"),
	telemetry.WithLabels("result"))

// Summary describes a written core file.
type Summary struct {
	Path    string
	Event   int
	Threads int
	Loads   int
	Size    uint64
}

// Generate writes a core file reconstructing the process state at event
// index of t. The file is written under a temporary name and renamed into
// place, so a failure never leaves a partial file at out.
func Generate(ctx context.Context, fs afero.Fs, t *tracefile.Trace, index int, out string, logger *zap.Logger) (*Summary, error) {
	_, span := tracer.Start(ctx, "coredump.Generate")
	defer span.End()
	span.SetAttributes(attribute.Int("pid", t.Pid), attribute.Int("event", index), attribute.String("out", out))

	sum, err := generate(fs, t, index, out, logger.With(zap.Int("pid", t.Pid), zap.Int("event", index)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Int("code", int(CodeOf(err))))
		coresGenerated(1, "failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("loads", sum.Loads), attribute.Int64("size", int64(sum.Size)))
	coresGenerated(1, "ok")
	return sum, nil
}

func generate(fs afero.Fs, t *tracefile.Trace, index int, out string, logger *zap.Logger) (*Summary, error) {
	if index < 0 || index >= len(t.Events) {
		return nil, newError(CodeBadIndex, fmt.Errorf("event %d out of range [0, %d)", index, len(t.Events)))
	}
	ev, err := t.LoadEvent(index)
	if err != nil {
		return nil, newError(CodeBadPayload, err)
	}

	snap, ok := t.Maps.At(ev.Timestamp)
	if !ok {
		return nil, newError(CodeNoDebugInfo, ErrNoDebugInfo)
	}
	static, ok := t.Maps.Static(ev.Timestamp)
	if !ok {
		return nil, newError(CodeBadPayload, errors.New("trace has no static process info"))
	}
	a, err := arch.ForName(static.Arch)
	if err != nil {
		return nil, newError(CodeBadPayload, err)
	}
	if len(ev.Threads) == 0 {
		return nil, newError(CodeBadPayload, fmt.Errorf("event %d carries no thread context", index))
	}

	blobs := collectBlobs(a.Class(), ev, snap, static, logger)
	loads := buildLoads(snap.Mappings, blobs)
	notes := buildNotes(a, ev, static, snap.Mappings)

	im, err := newImage(a, notes, loads)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(fs, out, im); err != nil {
		return nil, err
	}

	logger.Info("core file written",
		zap.String("path", out),
		zap.Int("threads", len(ev.Threads)),
		zap.Int("loads", len(loads)),
		zap.Uint64("size", im.size))
	return &Summary{Path: out, Event: index, Threads: len(ev.Threads), Loads: len(loads), Size: im.size}, nil
}

// collectBlobs gathers everything with bytes to place in the image, in
// increasing precedence: captured regions, TLS, the vDSO, the patched
// _DYNAMIC and the replacement link map list.
func collectBlobs(class elf.Class, ev *tracefile.Event, snap *tracefile.MapsSnapshot, static *tracefile.StaticInfo, logger *zap.Logger) []blob {
	var blobs []blob
	for _, r := range ev.Regions {
		blobs = append(blobs, blob{Start: r.Start, Data: r.Data})
	}
	for _, th := range ev.Threads {
		if len(th.TLS) > 0 {
			blobs = append(blobs, blob{Start: th.TLSAddr, Data: th.TLS})
		}
	}
	if len(static.VDSO) > 0 {
		blobs = append(blobs, blob{Start: static.VDSOAddr, Data: static.VDSO})
	}

	dbg := snap.Debug
	if dbg.DynamicAddr != 0 && len(dbg.Dynamic) > 0 {
		dyn := append([]byte(nil), dbg.Dynamic...)
		if !binutils.PatchDynamic(dyn, class, elf.DT_DEBUG, LinkMapBase) {
			logger.Warn("executable _DYNAMIC has no DT_DEBUG entry", zap.Uint64("addr", dbg.DynamicAddr))
		}
		blobs = append(blobs, blob{Start: dbg.DynamicAddr, Data: dyn})
	} else {
		logger.Warn("no _DYNAMIC recorded; debuggers will not find the module list")
	}

	lm := binutils.EncodeLinkMaps(class, LinkMapBase, dbg.LdBase, dbg.LinkMaps)
	return append(blobs, blob{Start: LinkMapBase, Data: lm})
}

func writeAtomic(fs afero.Fs, out string, im *image) (err error) {
	f, err := afero.TempFile(fs, filepath.Dir(out), "."+filepath.Base(out)+".*")
	if err != nil {
		return newError(CodeCreate, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = fs.Remove(tmp)
		}
	}()

	if err = im.writeTo(f); err != nil {
		return multierr.Append(err, f.Close())
	}
	if err = f.Sync(); err != nil {
		return multierr.Append(newError(CodeFinalize, err), f.Close())
	}
	if err = f.Close(); err != nil {
		return newError(CodeFinalize, err)
	}
	if err = fs.Rename(tmp, out); err != nil {
		return newError(CodeFinalize, err)
	}
	return nil
}

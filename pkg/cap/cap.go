// Package cap checks whether the host lets this process trace others.
package cap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// readFile is swapped in tests
var readFile = os.ReadFile

var (
	ErrPtraceRestricted = errors.New("yama ptrace_scope restricts attaching to non-descendants")
	ErrPtraceAdminOnly  = errors.New("yama ptrace_scope requires CAP_SYS_PTRACE")
	ErrPtraceDisabled   = errors.New("yama ptrace_scope disables ptrace attach")
	ErrNoSysPtrace      = errors.New("process lacks CAP_SYS_PTRACE")
	ErrOldKernel        = errors.New("kernel is too old (3.8 or later required)")
)

const capSysPtrace = 19

// Capability is a host property the tracer depends on.
type Capability int

const (
	CAP_KERNEL_VERSION Capability = iota // PTRACE_O_EXITKILL and GETREGSET are present
	CAP_PTRACE_ATTACH                    // attaching to an unrelated pid is allowed
	CAP_SYS_PTRACE                       // the effective set holds CAP_SYS_PTRACE
)

func (c Capability) String() string {
	switch c {
	case CAP_KERNEL_VERSION:
		return "kernel_version"
	case CAP_PTRACE_ATTACH:
		return "ptrace_attach"
	case CAP_SYS_PTRACE:
		return "sys_ptrace"
	default:
		return fmt.Sprintf("unknown capability: %d", c)
	}
}

// Check runs the probe for c.
func (c Capability) Check() error {
	switch c {
	case CAP_KERNEL_VERSION:
		return IsSupportedKernel()
	case CAP_PTRACE_ATTACH:
		return CanAttach()
	case CAP_SYS_PTRACE:
		return HasSysPtrace()
	default:
		return fmt.Errorf("unknown capability: %d", c)
	}
}

// PtraceScope returns the Yama ptrace_scope setting, or 0 when Yama is
// not built in.
func PtraceScope() (int, error) {
	content, err := readFile("/proc/sys/kernel/yama/ptrace_scope")
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read ptrace_scope: %w", err)
	}
	scope, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse ptrace_scope: %w", err)
	}
	return scope, nil
}

// CanAttach reports whether PTRACE_ATTACH to a process that is not a
// descendant is permitted. Launching a child is allowed in every scope
// but 3.
func CanAttach() error {
	scope, err := PtraceScope()
	if err != nil {
		return err
	}
	switch scope {
	case 0:
		return nil
	case 1:
		if HasSysPtrace() == nil {
			return nil
		}
		return ErrPtraceRestricted
	case 2:
		if HasSysPtrace() == nil {
			return nil
		}
		return ErrPtraceAdminOnly
	default:
		return ErrPtraceDisabled
	}
}

// HasSysPtrace inspects CapEff in /proc/self/status.
func HasSysPtrace() error {
	content, err := readFile("/proc/self/status")
	if err != nil {
		return fmt.Errorf("failed to read process status: %w", err)
	}
	for line := range strings.Lines(string(content)) {
		hex, ok := strings.CutPrefix(line, "CapEff:")
		if !ok {
			continue
		}
		caps, err := strconv.ParseUint(strings.TrimSpace(hex), 16, 64)
		if err != nil {
			return fmt.Errorf("failed to parse CapEff: %w", err)
		}
		if caps&(1<<capSysPtrace) != 0 {
			return nil
		}
		return ErrNoSysPtrace
	}
	return errors.New("CapEff missing from process status")
}

// IsSupportedKernel requires 3.8 or later.
func IsSupportedKernel() error {
	kernelVersion, err := readFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return fmt.Errorf("failed to read kernel version: %w", err)
	}

	verParseFn := func(err error) error {
		return fmt.Errorf("failed to parse kernel version: %w", err)
	}

	version := strings.TrimSpace(string(kernelVersion))
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return verParseFn(fmt.Errorf("version (%s) incorrect semantic versioning", version))
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return verParseFn(fmt.Errorf("major version (%s) not an integer", parts[0]))
	}
	// minor may carry a suffix, as in "4.19-rc1"
	minorStr, _, _ := strings.Cut(parts[1], "-")
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return verParseFn(fmt.Errorf("minor version (%s) not an integer", parts[1]))
	}

	if major > 3 || (major == 3 && minor >= 8) {
		return nil
	}

	return ErrOldKernel
}

//go:build linux

package cap

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeFiles serves readFile from a map; missing paths are ErrNotExist.
func fakeFiles(t *testing.T, files map[string]string) {
	orig := readFile
	t.Cleanup(func() { readFile = orig })
	readFile = func(path string) ([]byte, error) {
		content, ok := files[path]
		if !ok {
			return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
		}
		return []byte(content), nil
	}
}

const (
	statusWithPtrace = "Name:\tcoretrace\nCapEff:\t00000000000c0000\n"
	statusNoCaps     = "Name:\tcoretrace\nCapEff:\t0000000000000000\n"
)

func TestCanAttach(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		expect error
	}{
		{"no yama", map[string]string{}, nil},
		{"scope 0", map[string]string{"/proc/sys/kernel/yama/ptrace_scope": "0\n"}, nil},
		{"scope 1 unprivileged", map[string]string{
			"/proc/sys/kernel/yama/ptrace_scope": "1\n",
			"/proc/self/status":                  statusNoCaps,
		}, ErrPtraceRestricted},
		{"scope 1 with cap", map[string]string{
			"/proc/sys/kernel/yama/ptrace_scope": "1\n",
			"/proc/self/status":                  statusWithPtrace,
		}, nil},
		{"scope 2 unprivileged", map[string]string{
			"/proc/sys/kernel/yama/ptrace_scope": "2\n",
			"/proc/self/status":                  statusNoCaps,
		}, ErrPtraceAdminOnly},
		{"scope 3", map[string]string{
			"/proc/sys/kernel/yama/ptrace_scope": "3\n",
			"/proc/self/status":                  statusWithPtrace,
		}, ErrPtraceDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeFiles(t, tt.files)
			err := CAP_PTRACE_ATTACH.Check()
			if tt.expect == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.expect)
		})
	}
}

func TestPtraceScopeGarbage(t *testing.T) {
	fakeFiles(t, map[string]string{"/proc/sys/kernel/yama/ptrace_scope": "restricted"})
	_, err := PtraceScope()
	require.ErrorContains(t, err, "failed to parse ptrace_scope")
}

func TestHasSysPtrace(t *testing.T) {
	tests := []struct {
		name   string
		status string
		expect string
		is     error
	}{
		{name: "present", status: statusWithPtrace},
		{name: "absent", status: statusNoCaps, is: ErrNoSysPtrace},
		{name: "missing line", status: "Name:\tx\n", expect: "CapEff missing"},
		{name: "garbage", status: "CapEff:\tzz\n", expect: "failed to parse CapEff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeFiles(t, map[string]string{"/proc/self/status": tt.status})
			err := HasSysPtrace()
			switch {
			case tt.is != nil:
				require.ErrorIs(t, err, tt.is)
			case tt.expect != "":
				require.ErrorContains(t, err, tt.expect)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestIsSupportedKernel(t *testing.T) {
	tests := []struct {
		name   string
		ver    *string
		expect error
	}{
		{"6.8 generic", ptr("6.8.0-45-generic"), nil},
		{"exactly 3.8", ptr("3.8"), nil},
		{"rc suffix", ptr("4.19-rc1"), nil},
		{"too old", ptr("3.2.0"), ErrOldKernel},
		{"invalid format", ptr("foo.bar"), errors.New("failed to parse kernel version: major version (foo) not an integer")},
		{"no minor", ptr("6"), errors.New("incorrect semantic versioning")},
		{"read error", nil, errors.New("failed to read kernel version")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := map[string]string{}
			if tt.ver != nil {
				files["/proc/sys/kernel/osrelease"] = *tt.ver
			}
			fakeFiles(t, files)
			err := CAP_KERNEL_VERSION.Check()
			switch {
			case tt.expect == nil:
				require.NoError(t, err)
			case errors.Is(tt.expect, ErrOldKernel):
				require.ErrorIs(t, err, ErrOldKernel)
			default:
				require.ErrorContains(t, err, tt.expect.Error())
			}
		})
	}
}

func TestCapabilityString(t *testing.T) {
	require.Equal(t, "sys_ptrace", CAP_SYS_PTRACE.String())
	require.Equal(t, "unknown capability: 9", Capability(9).String())
}

func ptr(s string) *string { return &s }

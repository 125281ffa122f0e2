package config

import (
	"fmt"
	"strings"

	humanize "github.com/dustin/go-humanize"
	validator "github.com/go-playground/validator/v10"
	"golang.org/x/sys/unix"
	yaml "gopkg.in/yaml.v3"

	"github.com/coretrace/coretrace/pkg/arch"
	"github.com/coretrace/coretrace/pkg/syscalls"
)

// ByteSize is a human readable size such as "64KiB" or "16 MB".
type ByteSize string

// Bytes returns the size in bytes, or 0 when s is empty or malformed.
func (s ByteSize) Bytes() uint64 {
	if s == "" {
		return 0
	}
	n, err := humanize.ParseBytes(string(s))
	if err != nil {
		return 0
	}
	return n
}

type Compression string

const (
	Compression_LZ4  Compression = "lz4"
	Compression_NONE Compression = "none"
)

type Config struct {
	Trace   TraceConfig    `yaml:"trace"`
	Capture CaptureConfig  `yaml:"capture"`
	Control *ControlConfig `yaml:"control"`
	Status  *StatusConfig  `yaml:"status"`
}

// TraceConfig shapes the trace files.
type TraceConfig struct {
	Dir         string      `yaml:"dir" validate:"required"`
	Compression Compression `yaml:"compression" validate:"oneof=lz4 none"`
	BufferSize  ByteSize    `yaml:"buffer_size" validate:"bytesize"`
	// SizeCap bounds the uncompressed context stream; empty is unlimited.
	SizeCap ByteSize `yaml:"size_cap" validate:"omitempty,bytesize"`
	CapBump ByteSize `yaml:"cap_bump" validate:"bytesize"`
}

// CaptureConfig decides what is recorded and how much memory each event
// carries.
type CaptureConfig struct {
	Syscalls   string   `yaml:"syscalls" validate:"required,syscallfilter"`
	Signals    []string `yaml:"signals" validate:"dive,signal"`
	MaxStack   ByteSize `yaml:"max_stack" validate:"bytesize"`
	MaxParam   ByteSize `yaml:"max_param" validate:"bytesize"`
	TLSSize    ByteSize `yaml:"tls_size" validate:"omitempty,bytesize"`
	BreakAt    string   `yaml:"break_at"`
	ModuleData bool     `yaml:"module_data"`
}

// Filter resolves the syscall filter against t.
func (c CaptureConfig) Filter(t *syscalls.Table) (*syscalls.NumberSet, error) {
	return syscalls.ParseFilter(t, c.Syscalls)
}

// SignalList resolves the whitelisted signal names.
func (c CaptureConfig) SignalList() ([]unix.Signal, error) {
	out := make([]unix.Signal, 0, len(c.Signals))
	for _, name := range c.Signals {
		sig, err := ParseSignal(name)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}

type ControlConfig struct {
	Dir    string `yaml:"dir" validate:"required"`
	ShmDir string `yaml:"shm_dir"`
}

type StatusConfig struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
}

func (c *Config) SetDefaults() {
	if c.Trace.Compression == "" {
		c.Trace.Compression = Compression_LZ4
	}
	if c.Trace.BufferSize == "" {
		c.Trace.BufferSize = "1MiB"
	}
	if c.Trace.CapBump == "" {
		c.Trace.CapBump = "16MiB"
	}
	if c.Capture.Syscalls == "" {
		c.Capture.Syscalls = "all"
	}
	if c.Capture.MaxStack == "" {
		c.Capture.MaxStack = "64KiB"
	}
	if c.Capture.MaxParam == "" {
		c.Capture.MaxParam = "4KiB"
	}
}

func (c *Config) Normalize() {
	c.Trace.Compression = Compression(strings.ToLower(string(c.Trace.Compression)))
	for i, s := range c.Capture.Signals {
		c.Capture.Signals[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

func (c *Config) Validate() error {
	validate := validator.New()

	for name, fn := range map[string]validator.Func{
		"bytesize":      ValidateByteSize,
		"syscallfilter": ValidateSyscallFilter,
		"signal":        ValidateSignal,
	} {
		if err := validate.RegisterValidation(name, fn); err != nil {
			return fmt.Errorf("failed to register %s validation: %w", name, err)
		}
	}

	c.SetDefaults()
	c.Normalize()

	return validate.Struct(c)
}

// ValidateByteSize validates that the field parses as a size
func ValidateByteSize(fl validator.FieldLevel) bool {
	_, err := humanize.ParseBytes(fl.Field().String())
	return err == nil
}

// ValidateSyscallFilter validates that the field is a syscall filter
// expression. Names known only on other architectures are accepted.
func ValidateSyscallFilter(fl validator.FieldLevel) bool {
	_, err := syscalls.ParseFilter(filterTable(), fl.Field().String())
	return err == nil
}

// ValidateSignal validates that the field names a signal
func ValidateSignal(fl validator.FieldLevel) bool {
	_, err := ParseSignal(fl.Field().String())
	return err == nil
}

func filterTable() *syscalls.Table {
	if a, err := arch.Host(); err == nil {
		if t, err := syscalls.NewTable(a.Name()); err == nil {
			return t
		}
	}
	return syscalls.MustTable("amd64")
}

// ParseSignal accepts "SIGUSR1", "usr1" or a signal number.
func ParseSignal(name string) (unix.Signal, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	if sig := unix.SignalNum(name); sig != 0 {
		return sig, nil
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimPrefix(name, "SIG"), "%d", &n); err == nil && n > 0 && n < 65 {
		return unix.Signal(n), nil
	}
	return 0, fmt.Errorf("unknown signal %q", name)
}

func UnmarshalConfig(bytes []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(bytes, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

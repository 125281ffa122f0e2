//go:build linux

package telemetry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	sysInfoOnce sync.Once
	sysInfo     map[string]map[string]string
	sysInfoErr  error
)

// GetSysInfo returns the kernel and machine identity from uname(2).
func GetSysInfo() (map[string]map[string]string, error) {
	sysInfoOnce.Do(func() {
		var uname unix.Utsname
		if err := unix.Uname(&uname); err != nil {
			sysInfoErr = fmt.Errorf("failed to get system information: %w", err)
			return
		}
		sysInfo = map[string]map[string]string{
			"kernel": {
				"name":    unix.ByteSliceToString(uname.Sysname[:]),
				"release": unix.ByteSliceToString(uname.Release[:]),
				"version": unix.ByteSliceToString(uname.Version[:]),
			},
			"system": {
				"hostname":     unix.ByteSliceToString(uname.Nodename[:]),
				"architecture": unix.ByteSliceToString(uname.Machine[:]),
			},
		}
	})
	return sysInfo, sysInfoErr
}

// GetSysInfoAsFields returns system information as a zap field
func GetSysInfoAsFields() zap.Field {
	info, err := GetSysInfo()
	if err != nil {
		return zap.Error(err)
	}
	return zap.Any("sysinfo", info)
}

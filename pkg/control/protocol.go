// Package control implements the channel between the tracer and the
// interception library running inside a tracee: a unix socket carrying
// fixed-size request frames, and a POSIX shared memory staging buffer.
package control

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
)

var le = binary.LittleEndian

type Command uint32

const (
	// CmdInitSharedBuffers creates the staging buffer; the argument is its
	// data capacity in bytes.
	CmdInitSharedBuffers Command = iota + 1
	// CmdFlushSharedBuffers drains the staging buffer into the trace.
	CmdFlushSharedBuffers
	// CmdShareName sets the token naming the shared memory region.
	CmdShareName
	// CmdEnableDump turns capture on (argument != 0) or off.
	CmdEnableDump
	// CmdUpdateMaps asks for a maps rescan at the next stop.
	CmdUpdateMaps
)

var commandNames = map[Command]string{
	CmdInitSharedBuffers:  "init-shared-buffers",
	CmdFlushSharedBuffers: "flush-shared-buffers",
	CmdShareName:          "share-name",
	CmdEnableDump:         "enable-dump",
	CmdUpdateMaps:         "update-maps",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return "command_" + strconv.Itoa(int(c))
}

// Response statuses.
const (
	StatusOK             int32 = 0
	StatusUnknownCommand int32 = -1
	StatusNoBuffer       int32 = -2
	StatusFailed         int32 = -3
)

const (
	RequestSize  = 16
	ResponseSize = 4
)

// Request is the fixed request frame: command, reserved word, argument.
type Request struct {
	Command  Command
	Argument uint64
}

func (r Request) MarshalBinary() ([]byte, error) {
	b := make([]byte, RequestSize)
	le.PutUint32(b, uint32(r.Command))
	le.PutUint64(b[8:], r.Argument)
	return b, nil
}

func (r *Request) UnmarshalBinary(b []byte) error {
	if len(b) != RequestSize {
		return fmt.Errorf("request frame of %d bytes, want %d", len(b), RequestSize)
	}
	r.Command = Command(le.Uint32(b))
	r.Argument = le.Uint64(b[8:])
	return nil
}

// SocketPath is where the tracer listens for requests from pid.
func SocketPath(dir string, pid int) string {
	return filepath.Join(dir, "coretrace."+strconv.Itoa(pid)+".sock")
}

// ShmName is the POSIX shared memory name of pid's staging buffer.
func ShmName(pid int, token uint64) string {
	return fmt.Sprintf("/coretrace.%d.%d", pid, token)
}

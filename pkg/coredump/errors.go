package coredump

import (
	"errors"
	"fmt"
)

// ErrNoDebugInfo is returned when no maps snapshot with resolved loader
// debug info precedes the selected event.
var ErrNoDebugInfo = errors.New("no dynamic loader debug info")

// Code is the status reported for a failed synthesis. Each stage has its
// own code so callers can tell a bad request from an output failure.
type Code int

const (
	CodeBadIndex       Code = -1
	CodeNoDebugInfo    Code = -2
	CodeBadPayload     Code = -3
	CodeCreate         Code = -4
	CodeHeader         Code = -5
	CodeProgramHeaders Code = -6
	CodeNotes          Code = -7
	CodeLoadData       Code = -8
	CodeFinalize       Code = -9
)

var codeStages = map[Code]string{
	CodeBadIndex:       "select event",
	CodeNoDebugInfo:    "resolve modules",
	CodeBadPayload:     "decode payload",
	CodeCreate:         "create output",
	CodeHeader:         "write elf header",
	CodeProgramHeaders: "write program headers",
	CodeNotes:          "write notes",
	CodeLoadData:       "write load data",
	CodeFinalize:       "finalize output",
}

func (c Code) String() string {
	if s, ok := codeStages[c]; ok {
		return s
	}
	return fmt.Sprintf("code %d", int(c))
}

// Error is a failed synthesis. The trace is never modified, so any
// request can be retried.
type Error struct {
	Stage string
	Code  Code
	Err   error
}

func newError(code Code, err error) *Error {
	return &Error{Stage: code.String(), Code: code, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("core synthesis failed at %s (%d): %v", e.Stage, int(e.Code), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the synthesis status from err; zero means success and
// errors from elsewhere map to CodeFinalize.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeFinalize
}

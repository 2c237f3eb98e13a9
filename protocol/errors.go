package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrJSONParse    = errors.New("protocol: json parse error")
	ErrPathNotFound = errors.New("protocol: path not found")
	ErrTestFailed   = errors.New("protocol: test failed")
	ErrInvalidPatch = errors.New("protocol: invalid patch")
)

// DecodeError reports a frame that could not be decoded into a Message. It
// matches ErrJSONParse.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %v", ErrJSONParse, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrJSONParse, e.Err}
}

// Code is the ERROR payload a peer should receive for this failure.
func (e *DecodeError) Code() ErrorCode {
	return CodeJSONParse
}

// ApplyError reports the operation that aborted a patch set. Err is one of
// ErrPathNotFound, ErrTestFailed or ErrInvalidPatch.
type ApplyError struct {
	Index int
	Op    Operation
	Err   error
	Cause error
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("%v: operation %d (%s %q)", e.Err, e.Index, e.Op.Op, e.Op.Path)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ApplyError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func (e *ApplyError) Code() ErrorCode {
	return CodeApplyFailed
}

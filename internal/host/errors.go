package host

import (
	"errors"
	"fmt"

	"github.com/roach88/hostsim/internal/phase"
	"github.com/roach88/hostsim/internal/policy"
)

// ErrorCode categorizes host errors.
type ErrorCode string

const (
	// ErrCodePrivilege indicates a guarded call was made in a forbidden phase.
	ErrCodePrivilege ErrorCode = "PRIVILEGE_VIOLATION"

	// ErrCodePayloadTooLarge indicates a script event message over the byte limit.
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
)

// ErrClosed is returned by operations on a closed Environment.
var ErrClosed = errors.New("host: environment closed")

// PrivilegeError is returned when a guarded operation runs in a phase its
// guard forbids.
type PrivilegeError struct {
	// Op is the guarded operation that was refused.
	Op policy.Operation

	// Phase is the phase the call was made in.
	Phase phase.Phase

	// CallSite is "file.go:line" of the first caller outside the simulator.
	CallSite string
}

// Code returns ErrCodePrivilege.
func (e *PrivilegeError) Code() ErrorCode {
	return ErrCodePrivilege
}

func (e *PrivilegeError) Error() string {
	site := string(e.Op)
	if e.CallSite != "" {
		site = fmt.Sprintf("%s at %s", e.Op, e.CallSite)
	}
	return fmt.Sprintf("native function [%s] does not have required privileges in %s phase", site, e.Phase.Label())
}

// PayloadTooLargeError is returned by SendScriptEvent when the encoded
// message exceeds the limit.
type PayloadTooLargeError struct {
	Size  int // encoded size in bytes
	Limit int
}

// Code returns ErrCodePayloadTooLarge.
func (e *PayloadTooLargeError) Code() ErrorCode {
	return ErrCodePayloadTooLarge
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("script event payload is %d bytes, limit is %d bytes", e.Size, e.Limit)
}

// IsPrivilegeError returns true if err is or wraps a *PrivilegeError.
func IsPrivilegeError(err error) bool {
	var pe *PrivilegeError
	return errors.As(err, &pe)
}

// IsPayloadError returns true if err is or wraps a *PayloadTooLargeError.
func IsPayloadError(err error) bool {
	var pe *PayloadTooLargeError
	return errors.As(err, &pe)
}

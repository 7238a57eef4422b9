package rewards

import (
	"errors"
	"fmt"
)

// Code enumerates every failure kind a ledger operation can return.
type Code uint8

const (
	CodeUnknown Code = iota
	CodeAlreadyInitialized
	CodeInvalidVault
	CodeOverflow
	CodeUnauthorized
	CodeInsufficientRewards
	CodeTransferRejected
	CodeInvalidArgument
	CodeNotFound
)

func (c Code) String() string {
	switch c {
	case CodeAlreadyInitialized:
		return "AlreadyInitialized"
	case CodeInvalidVault:
		return "InvalidVault"
	case CodeOverflow:
		return "OverflowError"
	case CodeUnauthorized:
		return "Unauthorized"
	case CodeInsufficientRewards:
		return "InsufficientRewards"
	case CodeTransferRejected:
		return "TransferRejected"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is the only error type returned by Engine operations. Two errors are
// considered equal by errors.Is when their codes match, so callers can test
// against the Err* sentinels regardless of the message.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("rewards: %s: %v", msg, e.Err)
	}
	return "rewards: " + msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrAlreadyInitialized  = &Error{Code: CodeAlreadyInitialized, Msg: "pool already initialized"}
	ErrInvalidVault        = &Error{Code: CodeInvalidVault, Msg: "invalid vault"}
	ErrOverflow            = &Error{Code: CodeOverflow, Msg: "amount overflow"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Msg: "signer is not the pool authority"}
	ErrInsufficientRewards = &Error{Code: CodeInsufficientRewards, Msg: "insufficient rewards"}
	ErrTransferRejected    = &Error{Code: CodeTransferRejected, Msg: "transfer rejected"}
	ErrInvalidArgument     = &Error{Code: CodeInvalidArgument, Msg: "invalid argument"}
	ErrNotFound            = &Error{Code: CodeNotFound, Msg: "not found"}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the failure kind from err. Errors that did not originate
// from the engine report CodeUnknown.
func CodeOf(err error) Code {
	var rerr *Error
	if errors.As(err, &rerr) && rerr != nil {
		return rerr.Code
	}
	return CodeUnknown
}

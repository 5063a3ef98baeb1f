// Package nativeerr maps SDK and bridge failures onto the stable error
// codes the application layer switches on.
package nativeerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"

	"firebase.google.com/go/v4/errorutils"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/invertase/react-native-firebase/internal/tagged"
)

type Code string

const (
	Aborted            Code = "aborted"
	AlreadyExists      Code = "already-exists"
	Cancelled          Code = "cancelled"
	DataLoss           Code = "data-loss"
	DeadlineExceeded   Code = "deadline-exceeded"
	FailedPrecondition Code = "failed-precondition"
	Internal           Code = "internal"
	InvalidArgument    Code = "invalid-argument"
	NotFound           Code = "not-found"
	OutOfRange         Code = "out-of-range"
	PermissionDenied   Code = "permission-denied"
	ResourceExhausted  Code = "resource-exhausted"
	Unauthenticated    Code = "unauthenticated"
	Unavailable        Code = "unavailable"
	Unimplemented      Code = "unimplemented"
	Unknown            Code = "unknown"

	UnsupportedType Code = "unsupported-type"
	MalformedValue  Code = "malformed-value"
)

// Error is a coded failure as it crosses the boundary.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), err: err}
}

var grpcCodes = map[codes.Code]Code{
	codes.Canceled:           Cancelled,
	codes.Unknown:            Unknown,
	codes.InvalidArgument:    InvalidArgument,
	codes.DeadlineExceeded:   DeadlineExceeded,
	codes.NotFound:           NotFound,
	codes.AlreadyExists:      AlreadyExists,
	codes.PermissionDenied:   PermissionDenied,
	codes.ResourceExhausted:  ResourceExhausted,
	codes.FailedPrecondition: FailedPrecondition,
	codes.Aborted:            Aborted,
	codes.OutOfRange:         OutOfRange,
	codes.Unimplemented:      Unimplemented,
	codes.Internal:           Internal,
	codes.Unavailable:        Unavailable,
	codes.DataLoss:           DataLoss,
	codes.Unauthenticated:    Unauthenticated,
}

var sdkChecks = []struct {
	is   func(error) bool
	code Code
}{
	{errorutils.IsNotFound, NotFound},
	{errorutils.IsPermissionDenied, PermissionDenied},
	{errorutils.IsUnauthenticated, Unauthenticated},
	{errorutils.IsUnavailable, Unavailable},
	{errorutils.IsInvalidArgument, InvalidArgument},
	{errorutils.IsDeadlineExceeded, DeadlineExceeded},
	{errorutils.IsAborted, Aborted},
	{errorutils.IsAlreadyExists, AlreadyExists},
	{errorutils.IsConflict, Aborted},
	{errorutils.IsResourceExhausted, ResourceExhausted},
	{errorutils.IsFailedPrecondition, FailedPrecondition},
	{errorutils.IsOutOfRange, OutOfRange},
	{errorutils.IsDataLoss, DataLoss},
	{errorutils.IsCancelled, Cancelled},
	{errorutils.IsInternal, Internal},
	{errorutils.IsUnknown, Unknown},
}

// transport reports failures below HTTP: dropped connections, resets and
// name resolution. The database SDK reports these as unknown errors that
// carry no response.
func transport(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if errorutils.IsUnknown(e) && errorutils.HTTPResponse(e) == nil {
			return true
		}
	}
	return false
}

// From classifies any error. Already coded errors pass through unchanged.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	switch {
	case errors.Is(err, tagged.ErrUnsupportedType):
		return Wrap(UnsupportedType, err)
	case errors.Is(err, tagged.ErrMalformedValue):
		return Wrap(MalformedValue, err)
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(DeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return Wrap(Cancelled, err)
	case transport(err):
		return Wrap(Unavailable, err)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		if code, ok := grpcCodes[st.Code()]; ok {
			return &Error{Code: code, Message: st.Message(), err: err}
		}
	}
	for _, c := range sdkChecks {
		if c.is(err) {
			return Wrap(c.code, err)
		}
	}
	return Wrap(Unknown, err)
}

// CodeOf returns the stable code for err.
func CodeOf(err error) Code {
	if e := From(err); e != nil {
		return e.Code
	}
	return ""
}

var transient = map[Code]bool{
	Unavailable:       true,
	DeadlineExceeded:  true,
	ResourceExhausted: true,
	Aborted:           true,
	UnsupportedType:   true,
	MalformedValue:    true,
}

// IsTerminal reports whether a listener that saw err can no longer deliver
// events and must be removed.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	return !transient[CodeOf(err)]
}

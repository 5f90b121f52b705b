package dashapi

import (
	"errors"
	"fmt"
)

// ErrorKind is the classified form of a dashapi error code.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindCommunication
	KindSerialPort
	KindLicense
)

func (k ErrorKind) String() string {
	switch k {
	case KindCommunication:
		return "communication error"
	case KindSerialPort:
		return "serial port error"
	case KindLicense:
		return "license error"
	default:
		return "unknown error"
	}
}

// Sentinels matched by *Error through errors.Is.
var (
	ErrCommunication = errors.New("dashapi: communication error")
	ErrSerialPort    = errors.New("dashapi: serial port error")
	ErrLicense       = errors.New("dashapi: license error")
	ErrUnknown       = errors.New("dashapi: unknown error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindCommunication:
		return ErrCommunication
	case KindSerialPort:
		return ErrSerialPort
	case KindLicense:
		return ErrLicense
	default:
		return ErrUnknown
	}
}

// ClassifyError maps the raw code returned by mm_get_last_error. ok is false when
// the error lookup itself failed, which is reported as KindUnknown.
func ClassifyError(raw uint32, ok bool) ErrorKind {
	if !ok {
		return KindUnknown
	}
	switch raw {
	case 1:
		return KindCommunication
	case 2:
		return KindSerialPort
	case 3:
		return KindLicense
	default:
		return KindUnknown
	}
}

// Error is a failed call to the acquisition library.
type Error struct {
	Op   string    // e.g. "open port", "device list"
	Kind ErrorKind // classification of Code
	Code uint32    // raw code, 0 if the lookup failed
}

func (e *Error) Error() string {
	if e.Kind == KindUnknown && e.Code != 0 {
		return fmt.Sprintf("dashapi %s: %s (code %d)", e.Op, e.Kind, e.Code)
	}
	return fmt.Sprintf("dashapi %s: %s", e.Op, e.Kind)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Retryable reports whether waiting and calling again can reasonably succeed.
// A license failure will not fix itself.
func (e *Error) Retryable() bool {
	return e.Kind != KindLicense
}

// lastError builds an *Error for op from the source's last error code.
func lastError(src Source, op string) *Error {
	code, ok := src.LastError()
	if !ok {
		code = 0
	}
	return &Error{Op: op, Kind: ClassifyError(code, ok), Code: code}
}

// IsRetryable reports whether err is a classified acquisition error worth
// retrying. Errors that are not *Error are not retryable.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return false
}

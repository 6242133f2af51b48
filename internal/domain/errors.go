package domain

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
)

// Error kinds. Every failure crossing a component boundary matches exactly one
// of them with errors.Is.
var (
	// ErrAuth means the server rejected the credential. Fatal for that credential.
	ErrAuth = errors.Base("authentication rejected")

	// ErrNotFound means a remote directory or file does not exist or is not accessible.
	ErrNotFound = errors.Base("not found")

	// ErrPermission means local or remote access was denied for one file.
	ErrPermission = errors.Base("permission denied")

	// ErrTransientNetwork covers timeouts and resets. Callers may retry at the connect boundary.
	ErrTransientNetwork = errors.Base("transient network error")

	// ErrProtocol means the server answered something we cannot use.
	ErrProtocol = errors.Base("protocol error")

	// ErrDecode means a remote file name is not representable as a canonical name.
	ErrDecode = errors.Base("undecodable file name")

	// ErrLocalIO means the destination could not be written.
	ErrLocalIO = errors.Base("local i/o error")

	// ErrSessionClosed is returned by any session call after Close.
	ErrSessionClosed = errors.Base("session closed")
)

var kinds = []error{
	ErrAuth,
	ErrNotFound,
	ErrPermission,
	ErrTransientNetwork,
	ErrProtocol,
	ErrDecode,
	ErrLocalIO,
	ErrSessionClosed,
}

// OpError is a classified failure of one remote or local operation.
type OpError struct {
	Kind error
	Op   string
	Path string
	Err  error
}

// NewOpError classifies err under kind.
func NewOpError(kind error, op, path string, err error) *OpError {
	return &OpError{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *OpError) Error() string {
	msg := e.Kind.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind err matches, or ErrProtocol when it matches none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrProtocol
}

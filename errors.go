package pylink

import "github.com/pkg/errors"

// UsageError means the caller (a plugin, or another part of this package)
// asked for something that does not make sense: an invalid nick or server
// name, an operation on an unknown SID/UID, spawning on a non-internal
// server. It is always safe to report back to the caller; it never affects
// the link itself.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string {
	return e.msg
}

func newUsageError(format string, args ...interface{}) error {
	return &UsageError{msg: errors.Errorf(format, args...).Error()}
}

// ProtocolError is fatal to the session: a bad recvpass, or an explicit
// ERROR from the peer. The session must close after one of these.
type ProtocolError struct {
	msg   string
	cause error
}

func (e *ProtocolError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *ProtocolError) Cause() error {
	return e.cause
}

func newProtocolError(msg string) error {
	return &ProtocolError{msg: msg}
}

func wrapProtocolError(cause error, msg string) error {
	return &ProtocolError{msg: msg, cause: errors.Cause(cause)}
}

// IsProtocolError reports whether err is a *ProtocolError.
func IsProtocolError(err error) bool {
	_, ok := err.(*ProtocolError)
	return ok
}

// IsUsageError reports whether err is a *UsageError.
func IsUsageError(err error) bool {
	_, ok := err.(*UsageError)
	return ok
}

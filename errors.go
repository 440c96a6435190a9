package ftpsize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gonzalop/ftpsize/internal/ftp"
)

// Failure kinds. Every error returned by a Prober matches exactly one of them
// with errors.Is.
var (
	// ErrConnection covers DNS failures, refused or timed-out connections,
	// dropped connections and unexpected server replies.
	ErrConnection = errors.New("connection error")

	// ErrAuthentication means the server rejected the credentials or denied
	// access to the directory.
	ErrAuthentication = errors.New("authentication error")

	// ErrTimeout means the recursive listing did not finish within
	// Request.Timeout.
	ErrTimeout = errors.New("timeout")

	// ErrParse means the listing contained a line whose size field could not
	// be read.
	ErrParse = errors.New("parse error")
)

// Error is a failed probe step.
type Error struct {
	// Kind is one of ErrConnection, ErrAuthentication, ErrTimeout or ErrParse.
	Kind error

	// Op describes the step that failed, e.g. "login as alice".
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify maps a client error from op to a failure kind. Permission
// problems reported by the server are authentication failures; everything
// else on the wire is a connection failure.
func classify(op string, err error) *Error {
	kind := ErrConnection

	var pe *ftp.ProtocolError
	if errors.As(err, &pe) {
		switch {
		case pe.IsNotLoggedIn():
			kind = ErrAuthentication
		case pe.Command == "USER" || pe.Command == "PASS":
			if pe.IsPermanent() {
				kind = ErrAuthentication
			}
		case deniesAccess(pe.Response):
			kind = ErrAuthentication
		}
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

func deniesAccess(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "denied") || strings.Contains(msg, "permission")
}

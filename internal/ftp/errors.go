package ftp

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by commands issued on a client after Close or Quit.
var ErrClosed = errors.New("ftp: client closed")

// ProtocolError is a server reply that did not match what the command expected.
type ProtocolError struct {
	// Command is the FTP command that was sent, without arguments for PASS.
	Command string

	// Response is the reply text (e.g. "Login incorrect.").
	Response string

	// Code is the numeric reply code (e.g. 530).
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// IsPermanent reports a 5xx permanent negative completion.
func (e *ProtocolError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}

// IsNotLoggedIn reports whether the server refused the command because the
// session lacks valid credentials (530) or an account (532).
func (e *ProtocolError) IsNotLoggedIn() bool {
	return e.Code == 530 || e.Code == 532
}

func unexpected(command string, r *Response) *ProtocolError {
	return &ProtocolError{
		Command:  command,
		Response: r.Message,
		Code:     r.Code,
	}
}

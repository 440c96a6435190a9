package ftp

import (
	"fmt"
	"strings"
	"time"
)

// Response is a complete server reply. Multi-line replies are joined with
// "\n" in Message.
type Response struct {
	Code    int
	Message string
}

// Is1xx reports a positive preliminary reply.
func (r *Response) Is1xx() bool {
	return r.Code >= 100 && r.Code < 200
}

// Is2xx reports a positive completion reply.
func (r *Response) Is2xx() bool {
	return r.Code >= 200 && r.Code < 300
}

// cmd sends one command and reads its reply within the client timeout.
func (c *Client) cmd(command string, args ...string) (*Response, error) {
	return c.cmdWithin(c.timeout, command, args...)
}

// cmdWithin is cmd with its own reply timeout. Zero waits for the reply
// until the client is closed.
func (c *Client) cmdWithin(replyTimeout time.Duration, command string, args ...string) (*Response, error) {
	line := command
	if len(args) > 0 {
		line = command + " " + strings.Join(args, " ")
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.isClosed() {
		return nil, ErrClosed
	}

	if command == "PASS" {
		c.logger.Debug("ftp command", "cmd", "PASS ****")
	} else {
		c.logger.Debug("ftp command", "cmd", line)
	}

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if err := c.text.PrintfLine("%s", line); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", command, err)
	}

	return c.readReplyLocked(replyTimeout)
}

// readReply reads a reply that was not triggered by a new command, such as
// the greeting.
func (c *Client) readReply() (*Response, error) {
	return c.readReplyWithin(c.timeout)
}

func (c *Client) readReplyWithin(timeout time.Duration) (*Response, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	return c.readReplyLocked(timeout)
}

func (c *Client) readReplyLocked(timeout time.Duration) (*Response, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	// expectCode 0 accepts any code; mismatches are judged by the caller.
	code, msg, err := c.text.ReadResponse(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("ftp response", "code", code, "message", msg)
	return &Response{Code: code, Message: msg}, nil
}

// expectCode sends a command and fails unless the reply code is want.
func (c *Client) expectCode(want int, command string, args ...string) (*Response, error) {
	resp, err := c.cmd(command, args...)
	if err != nil {
		return nil, err
	}
	if resp.Code != want {
		return resp, unexpected(command, resp)
	}
	return resp, nil
}

// expect2xx sends a command and fails unless the reply is a positive completion.
func (c *Client) expect2xx(command string, args ...string) (*Response, error) {
	resp, err := c.cmd(command, args...)
	if err != nil {
		return nil, err
	}
	if !resp.Is2xx() {
		return resp, unexpected(command, resp)
	}
	return resp, nil
}

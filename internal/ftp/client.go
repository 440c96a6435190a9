package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client is an FTP control connection.
type Client struct {
	// conn is the control connection, text the reply reader/command writer
	// layered on it.
	conn net.Conn
	text *textproto.Conn

	// host is the control connection's host, used for EPSV data connections
	// and PASV replies announcing 0.0.0.0.
	host string

	timeout     time.Duration
	dialer      Dialer
	proxyURL    *url.URL
	tlsConfig   *tls.Config
	tlsMode     tlsMode
	logger      *slog.Logger
	disableEPSV bool

	// currentType is the last TYPE acknowledged by the server.
	currentType string

	// cmdMu serializes command/reply exchanges on the control connection.
	cmdMu sync.Mutex

	// mu guards closed and dataConn. It is never held across network I/O so
	// Close can always make progress.
	mu       sync.Mutex
	closed   bool
	dataConn net.Conn
}

// Dial connects to addr ("host:port") and reads the server greeting. The
// context bounds the whole dial, including TLS negotiation.
func Dial(ctx context.Context, addr string, options ...Option) (*Client, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	c := &Client{
		host:    host,
		timeout: 30 * time.Second,
		tlsMode: tlsModeNone,
		logger:  slog.New(slog.DiscardHandler),
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if c.dialer == nil {
		c.dialer = &net.Dialer{Timeout: c.timeout}
	}
	if c.proxyURL != nil {
		if c.dialer, err = dialerThroughProxy(c.proxyURL, c.dialer); err != nil {
			return nil, err
		}
	}
	if c.tlsConfig != nil && c.tlsConfig.ServerName == "" {
		c.tlsConfig.ServerName = host
	}

	if err := c.connect(ctx, addr); err != nil {
		return nil, err
	}
	return c, nil
}

// connect establishes the control connection and handles the initial handshake.
func (c *Client) connect(ctx context.Context, addr string) error {
	c.logger.Debug("connecting to ftp server", "addr", addr, "tls_mode", c.tlsMode)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	// A cancelled ctx unblocks the greeting read and the TLS handshakes.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if c.tlsMode == tlsModeImplicit {
		c.logger.Debug("starting TLS handshake", "mode", "implicit")
		tlsConn := tls.Client(conn, c.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("TLS handshake failed: %w", err)
		}
		conn = tlsConn
	}
	c.setConn(conn)

	resp, err := c.readReply()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	if resp.Code != 220 {
		conn.Close()
		return unexpected("CONNECT", resp)
	}

	switch c.tlsMode {
	case tlsModeExplicit:
		if err := c.upgradeToTLS(ctx); err != nil {
			c.conn.Close()
			return err
		}
	case tlsModeImplicit:
		if err := c.protectData(); err != nil {
			c.conn.Close()
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (c *Client) setConn(conn net.Conn) {
	c.conn = conn
	c.text = textproto.NewConn(conn)
}

// upgradeToTLS runs AUTH TLS and the handshake, then protects the data
// channel.
func (c *Client) upgradeToTLS(ctx context.Context) error {
	if _, err := c.expectCode(234, "AUTH", "TLS"); err != nil {
		return fmt.Errorf("AUTH TLS failed: %w", err)
	}

	c.logger.Debug("starting TLS handshake", "mode", "explicit")
	tlsConn := tls.Client(c.conn, c.tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("TLS handshake failed: %w", err)
	}
	c.setConn(tlsConn)

	return c.protectData()
}

// protectData sends PBSZ 0 and PROT P so the server encrypts data
// connections as well.
func (c *Client) protectData() error {
	if _, err := c.expectCode(200, "PBSZ", "0"); err != nil {
		return fmt.Errorf("PBSZ failed: %w", err)
	}
	if _, err := c.expectCode(200, "PROT", "P"); err != nil {
		return fmt.Errorf("PROT failed: %w", err)
	}
	return nil
}

// Login sends USER and, when the server asks for it, PASS.
func (c *Client) Login(username, password string) error {
	resp, err := c.cmd("USER", username)
	if err != nil {
		return err
	}

	switch resp.Code {
	case 230:
		return nil
	case 331:
		_, err := c.expectCode(230, "PASS", password)
		return err
	default:
		return unexpected("USER", resp)
	}
}

// ChangeDir changes the working directory.
func (c *Client) ChangeDir(dir string) error {
	_, err := c.expect2xx("CWD", dir)
	return err
}

// Type sets the transfer type ("A" or "I"). Repeating the current type is a
// no-op.
func (c *Client) Type(transferType string) error {
	if c.currentType == transferType {
		return nil
	}
	if _, err := c.expectCode(200, "TYPE", transferType); err != nil {
		return err
	}
	c.currentType = transferType
	return nil
}

// Quit sends QUIT and closes the connection. Errors from QUIT itself are
// ignored; the connection is closed either way.
func (c *Client) Quit() error {
	if c.isClosed() {
		return nil
	}
	c.dropDataConn()
	_, _ = c.cmd("QUIT")
	return c.Close()
}

// Close closes the control connection and any open data connection without
// saying goodbye. It may be called from any goroutine, including while
// another goroutine is blocked in RawList; that call then returns an error.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dc := c.dataConn
	c.dataConn = nil
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RawList runs LIST with the given arguments (e.g. "-Rt") in ASCII mode and
// returns the listing text exactly as the server sent it.
//
// The client timeout covers the setup up to and including sending LIST. From
// then until the completion reply no read deadline applies, because a
// recursive listing may legitimately take far longer than one network round
// trip. Callers bound it by calling Close from another goroutine.
func (c *Client) RawList(args ...string) (string, error) {
	if err := c.Type("A"); err != nil {
		return "", err
	}

	dc, err := c.openDataConn()
	if err != nil {
		return "", err
	}
	if !c.trackDataConn(dc) {
		dc.Close()
		return "", ErrClosed
	}

	resp, err := c.cmdWithin(0, "LIST", args...)
	if err != nil {
		c.dropDataConn()
		return "", err
	}
	if !resp.Is1xx() && !resp.Is2xx() {
		c.dropDataConn()
		return "", unexpected("LIST", resp)
	}

	var buf strings.Builder
	_, copyErr := io.Copy(&buf, dc)
	c.dropDataConn()
	if copyErr != nil {
		if c.isClosed() {
			return "", ErrClosed
		}
		return "", fmt.Errorf("failed to read directory listing: %w", copyErr)
	}

	// A 1xx reply is followed by the transfer's completion reply.
	if resp.Is1xx() {
		done, err := c.readReplyWithin(0)
		if err != nil {
			if c.isClosed() {
				return "", ErrClosed
			}
			return "", fmt.Errorf("failed to read completion response: %w", err)
		}
		c.logger.Debug("ftp data transfer complete", "code", done.Code, "bytes", buf.Len())
		if !done.Is2xx() {
			return "", unexpected("LIST", done)
		}
	}

	return buf.String(), nil
}

// trackDataConn registers dc so Close can tear it down. It reports false if
// the client was closed in the meantime.
func (c *Client) trackDataConn(dc net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.dataConn = dc
	return true
}

func (c *Client) dropDataConn() {
	c.mu.Lock()
	dc := c.dataConn
	c.dataConn = nil
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
}

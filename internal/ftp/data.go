package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// parsePASV extracts the data address from a 227 reply.
// Example: "Entering Passive Mode (192,168,1,1,195,149)." -> "192.168.1.1:50069"
func parsePASV(msg string) (string, error) {
	start := strings.IndexByte(msg, '(')
	end := strings.LastIndexByte(msg, ')')
	if start < 0 || end < start {
		return "", fmt.Errorf("invalid PASV response: %s", msg)
	}

	parts := strings.Split(msg[start+1:end], ",")
	if len(parts) != 6 {
		return "", fmt.Errorf("invalid PASV response: %s", msg)
	}

	var b [6]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return "", fmt.Errorf("invalid PASV response: %s", msg)
		}
		b[i] = v
	}

	host := fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
	port := b[4]<<8 | b[5]
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// parseEPSV extracts the port from a 229 reply.
// Example: "Entering Extended Passive Mode (|||6446|)" -> "6446"
func parseEPSV(msg string) (string, error) {
	start := strings.IndexByte(msg, '(')
	end := strings.LastIndexByte(msg, ')')
	if start < 0 || end < start+5 {
		return "", fmt.Errorf("invalid EPSV response: %s", msg)
	}

	// The delimiter is whatever character follows the parenthesis.
	inner := msg[start+1 : end]
	d := inner[:1]
	fields := strings.Split(inner, d)
	if len(fields) != 5 {
		return "", fmt.Errorf("invalid EPSV response: %s", msg)
	}

	port, err := strconv.Atoi(fields[3])
	if err != nil || port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid EPSV port: %s", fields[3])
	}
	return fields[3], nil
}

// resolveDataAddr swaps an unspecified PASV host (0.0.0.0) for the control
// connection host.
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil {
		return pasvAddr
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return net.JoinHostPort(controlHost, port)
	}
	return pasvAddr
}

// passiveAddr asks the server for a passive data address, trying EPSV first
// and remembering if the server does not implement it.
func (c *Client) passiveAddr() (string, error) {
	if !c.disableEPSV {
		resp, err := c.cmd("EPSV")
		if err != nil {
			return "", fmt.Errorf("EPSV failed: %w", err)
		}
		switch {
		case resp.Code == 229:
			port, err := parseEPSV(resp.Message)
			if err != nil {
				return "", err
			}
			return net.JoinHostPort(c.host, port), nil
		case resp.Code == 500 || resp.Code == 501 || resp.Code == 502:
			c.disableEPSV = true
		default:
			return "", unexpected("EPSV", resp)
		}
	}

	resp, err := c.cmd("PASV")
	if err != nil {
		return "", fmt.Errorf("PASV failed: %w", err)
	}
	if resp.Code != 227 {
		return "", unexpected("PASV", resp)
	}
	addr, err := parsePASV(resp.Message)
	if err != nil {
		return "", err
	}
	return resolveDataAddr(addr, c.host), nil
}

// openDataConn dials a passive data connection. With TLS the connection is
// wrapped but not yet handshaken: servers only start the data handshake once
// they have received the transfer command, so it happens on the first read.
func (c *Client) openDataConn() (net.Conn, error) {
	addr, err := c.passiveAddr()
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Debug("opening data connection", "addr", addr)
	dc, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data port: %w", err)
	}

	if c.tlsMode != tlsModeNone {
		return tls.Client(dc, c.tlsConfig), nil
	}
	return dc, nil
}

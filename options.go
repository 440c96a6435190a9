package ftpsize

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Option configures a Prober.
type Option func(*Prober)

// Dialer opens network connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TLSMode selects how the control connection is secured.
type TLSMode int

const (
	// TLSNone uses plain FTP.
	TLSNone TLSMode = iota
	// TLSExplicit upgrades with AUTH TLS on the normal port.
	TLSExplicit
	// TLSImplicit speaks TLS from the first byte, on port 990 by default.
	TLSImplicit
)

func (m TLSMode) String() string {
	switch m {
	case TLSExplicit:
		return "explicit"
	case TLSImplicit:
		return "implicit"
	default:
		return "none"
	}
}

// ParseTLSMode parses "none", "explicit" or "implicit" (case-insensitive).
// The empty string is TLSNone.
func ParseTLSMode(s string) (TLSMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TLSNone, nil
	case "explicit":
		return TLSExplicit, nil
	case "implicit":
		return TLSImplicit, nil
	default:
		return TLSNone, fmt.Errorf("unknown TLS mode %q (want none, explicit or implicit)", s)
	}
}

// WithLogger sets the logger for probe progress and, at debug level, the FTP
// conversation. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithConnectTimeout bounds dialing and each command/reply exchange outside the
// listing transfer, which Request.Timeout bounds instead.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Prober) {
		p.connectTimeout = d
	}
}

// WithTLS secures the control and data connections. A nil config uses the
// system roots and the request's host name.
func WithTLS(mode TLSMode, config *tls.Config) Option {
	return func(p *Prober) {
		p.tlsMode = mode
		p.tlsConfig = config
	}
}

// WithProxy routes all connections through a SOCKS5 proxy URL such as
// "socks5://127.0.0.1:1080".
func WithProxy(rawURL string) Option {
	return func(p *Prober) {
		p.proxyURL = rawURL
	}
}

// WithDialer replaces the dialer used for control and data connections.
func WithDialer(d Dialer) Option {
	return func(p *Prober) {
		p.dialer = d
	}
}

// WithStrictParsing makes regular listing lines without a size field fail the
// probe with ErrParse instead of being skipped.
func WithStrictParsing() Option {
	return func(p *Prober) {
		p.strict = true
	}
}

// WithPASV skips EPSV and requests data connections with PASV only, for
// servers or middleboxes that mishandle EPSV.
func WithPASV() Option {
	return func(p *Prober) {
		p.pasv = true
	}
}

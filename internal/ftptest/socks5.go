package ftptest

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
)

// SOCKS5 is a loopback SOCKS5 proxy that supports unauthenticated CONNECT,
// which is all an FTP client needs for control and passive data connections.
type SOCKS5 struct {
	// Addr is the host:port the proxy listens on.
	Addr string

	ln net.Listener

	mu      sync.Mutex
	targets []string
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// NewSOCKS5 starts a proxy and registers its shutdown with t.Cleanup.
func NewSOCKS5(t testing.TB) *SOCKS5 {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ftptest: listen: %v", err)
	}

	p := &SOCKS5{
		Addr:  ln.Addr().String(),
		ln:    ln,
		conns: make(map[net.Conn]struct{}),
	}
	p.wg.Add(1)
	go p.serve()
	t.Cleanup(p.Close)
	return p
}

// Targets returns the addresses clients asked the proxy to connect to, in
// order.
func (p *SOCKS5) Targets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.targets...)
}

// Close stops the proxy and tears down every relayed connection.
func (p *SOCKS5) Close() {
	_ = p.ln.Close()

	p.mu.Lock()
	for c := range p.conns {
		_ = c.Close()
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *SOCKS5) serve() {
	defer p.wg.Done()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.track(conn, true)

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.track(conn, false)
			defer conn.Close()
			p.handle(conn)
		}()
	}
}

func (p *SOCKS5) track(c net.Conn, add bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if add {
		p.conns[c] = struct{}{}
	} else {
		delete(p.conns, c)
	}
}

// Reply codes from RFC 1928.
const (
	socksSucceeded       = 0x00
	socksHostDown        = 0x04
	socksCmdUnsupported  = 0x07
	socksAddrUnsupported = 0x08
)

func (p *SOCKS5) handle(conn net.Conn) {
	br := bufio.NewReader(conn)

	// VER NMETHODS METHODS...; only "no authentication" is offered back.
	var hello [2]byte
	if _, err := io.ReadFull(br, hello[:]); err != nil || hello[0] != 5 {
		return
	}
	if _, err := io.CopyN(io.Discard, br, int64(hello[1])); err != nil {
		return
	}
	if _, err := conn.Write([]byte{5, 0}); err != nil {
		return
	}

	// VER CMD RSV ATYP DST.ADDR DST.PORT
	var req [4]byte
	if _, err := io.ReadFull(br, req[:]); err != nil {
		return
	}
	if req[1] != 1 {
		writeSOCKSReply(conn, socksCmdUnsupported)
		return
	}

	var host string
	switch req[3] {
	case 1, 4:
		ip := make(net.IP, 4)
		if req[3] == 4 {
			ip = make(net.IP, 16)
		}
		if _, err := io.ReadFull(br, ip); err != nil {
			return
		}
		host = ip.String()
	case 3:
		n, err := br.ReadByte()
		if err != nil {
			return
		}
		name := make([]byte, n)
		if _, err := io.ReadFull(br, name); err != nil {
			return
		}
		host = string(name)
	default:
		writeSOCKSReply(conn, socksAddrUnsupported)
		return
	}

	var port [2]byte
	if _, err := io.ReadFull(br, port[:]); err != nil {
		return
	}
	target := net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(port[:]))))

	p.mu.Lock()
	p.targets = append(p.targets, target)
	p.mu.Unlock()

	upstream, err := net.Dial("tcp", target)
	if err != nil {
		writeSOCKSReply(conn, socksHostDown)
		return
	}
	p.track(upstream, true)
	defer p.track(upstream, false)
	defer upstream.Close()

	if !writeSOCKSReply(conn, socksSucceeded) {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_, _ = io.Copy(upstream, br)
		_ = upstream.Close()
	}()
	_, _ = io.Copy(conn, upstream)
}

// writeSOCKSReply answers a request with a zero IPv4 bind address.
func writeSOCKSReply(conn net.Conn, code byte) bool {
	_, err := conn.Write([]byte{5, code, 0, 1, 0, 0, 0, 0, 0, 0})
	return err == nil
}

// Package ftptest provides a scripted, in-process FTP server for tests.
//
// The server speaks enough of the protocol for a client to log in, change
// directory and fetch a LIST over a passive (EPSV or PASV) data connection,
// optionally secured with explicit (AUTH TLS) or implicit TLS. Any command can
// be overridden with WithHandler to script failures, slow listings or odd
// replies. NewSOCKS5 starts a loopback SOCKS5 proxy to put in front of it.
package ftptest

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/textproto"
	"path"
	"strings"
	"sync"
	"testing"
)

// HandlerFunc handles one command on a session. args is everything after the
// command verb, possibly empty.
type HandlerFunc func(s *Session, args string)

// Option configures a Server.
type Option func(*Server)

// WithUser adds an account. Once any account is registered, USER/PASS only
// succeed for registered accounts.
func WithUser(name, password string) Option {
	return func(s *Server) {
		s.users[name] = password
	}
}

// WithListing sets the LIST output returned when the session's working
// directory is dir. "/" is the initial working directory.
func WithListing(dir, listing string) Option {
	return func(s *Server) {
		s.listings[path.Clean(dir)] = listing
	}
}

// WithHandler overrides the handling of cmd (upper case, e.g. "LIST").
func WithHandler(cmd string, h HandlerFunc) Option {
	return func(s *Server) {
		s.handlers[strings.ToUpper(cmd)] = h
	}
}

// WithGreeting replaces the "220 Service ready" banner.
func WithGreeting(line string) Option {
	return func(s *Server) {
		s.greeting = line
	}
}

// WithExplicitTLS accepts AUTH TLS, PBSZ and PROT with a self-signed
// certificate. Data connections are encrypted after PROT P.
func WithExplicitTLS() Option {
	return func(s *Server) {
		s.tlsMode = "explicit"
	}
}

// WithImplicitTLS speaks TLS from the first byte of every control
// connection. Data connections are encrypted after PROT P.
func WithImplicitTLS() Option {
	return func(s *Server) {
		s.tlsMode = "implicit"
	}
}

// Server is a scripted FTP server bound to a loopback port.
type Server struct {
	// Addr is the host:port the control listener is bound to.
	Addr string

	ln       net.Listener
	greeting string
	users    map[string]string
	listings map[string]string
	handlers map[string]HandlerFunc

	tlsMode   string
	tlsConfig *tls.Config
	roots     *x509.CertPool

	mu       sync.Mutex
	commands []string
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

// New starts a server and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ftptest: listen: %v", err)
	}

	s := &Server{
		Addr:     ln.Addr().String(),
		ln:       ln,
		greeting: "220 Service ready",
		users:    make(map[string]string),
		listings: map[string]string{"/": ""},
		handlers: make(map[string]HandlerFunc),
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tlsMode != "" {
		cert, roots := selfSigned(t)
		s.tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		s.roots = roots
	}

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// ClientTLSConfig returns a client configuration that trusts the server's
// certificate, or nil when the server does not use TLS.
func (s *Server) ClientTLSConfig() *tls.Config {
	if s.roots == nil {
		return nil
	}
	return &tls.Config{RootCAs: s.roots}
}

// Commands returns every command line received so far, in order, across all
// sessions.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Close stops accepting connections, drops every session and waits for the
// session goroutines to exit.
func (s *Server) Close() {
	_ = s.ln.Close()

	s.mu.Lock()
	for sess := range s.sessions {
		sess.close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			return
		}

		conn := raw
		if s.tlsMode == "implicit" {
			conn = tls.Server(raw, s.tlsConfig)
		}
		sess := &Session{
			srv:  s,
			raw:  raw,
			conn: conn,
			text: textproto.NewConn(conn),
			cwd:  "/",
		}
		s.mu.Lock()
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.run()

			s.mu.Lock()
			delete(s.sessions, sess)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) record(line string) {
	s.mu.Lock()
	s.commands = append(s.commands, line)
	s.mu.Unlock()
}

// Session is one client control connection.
type Session struct {
	srv *Server

	// raw is the TCP connection; conn and text may be replaced by a TLS
	// layer on top of it, which only the session goroutine touches.
	raw  net.Conn
	conn net.Conn
	text *textproto.Conn

	user      string
	loggedIn  bool
	cwd       string
	protected bool

	dataMu sync.Mutex
	dataLn net.Listener
}

// Reply writes one reply line, e.g. Reply("550 %s: denied", dir).
func (s *Session) Reply(format string, args ...any) {
	_ = s.text.PrintfLine(format, args...)
}

// AcceptData waits for the client to open the pending passive data
// connection. After PROT P the returned connection is a TLS server
// connection whose handshake runs on first use.
func (s *Session) AcceptData() (net.Conn, error) {
	s.dataMu.Lock()
	ln := s.dataLn
	s.dataMu.Unlock()

	if ln == nil {
		return nil, fmt.Errorf("ftptest: no passive listener")
	}

	// The listener stays registered while blocked so close can interrupt it.
	conn, err := ln.Accept()

	s.dataMu.Lock()
	if s.dataLn == ln {
		s.dataLn = nil
	}
	s.dataMu.Unlock()
	_ = ln.Close()

	if err != nil {
		return nil, err
	}
	if s.protected {
		return tls.Server(conn, s.srv.tlsConfig), nil
	}
	return conn, nil
}

// SendData runs a complete data transfer: 150, payload over the data
// connection, 226.
func (s *Session) SendData(payload string) {
	s.Reply("150 Here comes the directory listing.")
	dc, err := s.AcceptData()
	if err != nil {
		s.Reply("425 Can't open data connection.")
		return
	}
	_, werr := dc.Write([]byte(payload))
	_ = dc.Close()
	if werr != nil {
		s.Reply("426 Connection closed; transfer aborted.")
		return
	}
	s.Reply("226 Directory send OK.")
}

// Hang blocks until the client closes the control connection or the server
// shuts down. Handlers use it to simulate a transfer that never completes.
func (s *Session) Hang() {
	for {
		if _, err := s.text.ReadLine(); err != nil {
			return
		}
	}
}

func (s *Session) close() {
	_ = s.raw.Close()
	s.dataMu.Lock()
	if s.dataLn != nil {
		_ = s.dataLn.Close()
	}
	s.dataMu.Unlock()
}

func (s *Session) run() {
	defer s.close()

	s.Reply("%s", s.srv.greeting)
	for {
		line, err := s.text.ReadLine()
		if err != nil {
			return
		}
		s.srv.record(line)

		verb, args, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		if h, ok := s.srv.handlers[verb]; ok {
			h(s, args)
			continue
		}
		if verb == "QUIT" {
			s.Reply("221 Goodbye.")
			return
		}
		s.builtin(verb, args)
	}
}

func (s *Session) builtin(verb, args string) {
	switch verb {
	case "AUTH":
		if s.srv.tlsMode != "explicit" || !strings.EqualFold(args, "TLS") {
			s.Reply("504 AUTH not supported.")
			return
		}
		s.Reply("234 Proceed with negotiation.")
		tlsConn := tls.Server(s.conn, s.srv.tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			// The next read fails and ends the session.
			_ = s.raw.Close()
			return
		}
		s.conn = tlsConn
		s.text = textproto.NewConn(tlsConn)
	case "PBSZ":
		s.Reply("200 PBSZ=0")
	case "PROT":
		switch strings.ToUpper(args) {
		case "P":
			if s.srv.tlsConfig == nil {
				s.Reply("536 Requested PROT level not supported.")
				return
			}
			s.protected = true
			s.Reply("200 PROT now Private.")
		case "C":
			s.protected = false
			s.Reply("200 PROT now Clear.")
		default:
			s.Reply("504 PROT not implemented.")
		}
	case "USER":
		s.user = args
		s.loggedIn = false
		s.Reply("331 Please specify the password.")
	case "PASS":
		if len(s.srv.users) > 0 {
			if want, ok := s.srv.users[s.user]; !ok || want != args {
				s.Reply("530 Login incorrect.")
				return
			}
		}
		s.loggedIn = true
		s.Reply("230 Login successful.")
	case "TYPE", "NOOP":
		s.Reply("200 Command okay.")
	case "SYST":
		s.Reply("215 UNIX Type: L8")
	case "PWD":
		s.Reply("257 %q is the current directory", s.cwd)
	case "CWD":
		if !s.loggedIn {
			s.Reply("530 Please login with USER and PASS.")
			return
		}
		dir := args
		if !path.IsAbs(dir) {
			dir = path.Join(s.cwd, dir)
		}
		dir = path.Clean(dir)
		if _, ok := s.srv.listings[dir]; !ok {
			s.Reply("550 Failed to change directory.")
			return
		}
		s.cwd = dir
		s.Reply("250 Directory successfully changed.")
	case "EPSV":
		port, err := s.listenData()
		if err != nil {
			s.Reply("425 Cannot open passive connection.")
			return
		}
		s.Reply("229 Entering Extended Passive Mode (|||%d|)", port)
	case "PASV":
		port, err := s.listenData()
		if err != nil {
			s.Reply("425 Cannot open passive connection.")
			return
		}
		s.Reply("227 Entering Passive Mode (127,0,0,1,%d,%d).", port/256, port%256)
	case "LIST":
		if !s.loggedIn {
			s.Reply("530 Please login with USER and PASS.")
			return
		}
		s.SendData(s.srv.listings[s.cwd])
	default:
		s.Reply("502 Command not implemented.")
	}
}

func (s *Session) listenData() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}

	s.dataMu.Lock()
	if s.dataLn != nil {
		_ = s.dataLn.Close()
	}
	s.dataLn = ln
	s.dataMu.Unlock()

	return ln.Addr().(*net.TCPAddr).Port, nil
}

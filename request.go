package ftpsize

import (
	"net"
	"strings"
	"time"
)

const (
	// DefaultUsername logs in without credentials.
	DefaultUsername = "anonymous"

	// DefaultTimeout bounds the recursive listing when Request.Timeout is zero.
	DefaultTimeout = 60 * time.Second

	// anonymousPassword is the conventional password sent for anonymous
	// logins.
	anonymousPassword = "anonymous@"
)

// Request describes one directory to measure. The zero values of Username,
// Directory and Timeout select the defaults.
type Request struct {
	// Host is "host" or "host:port". The port defaults to 21, or 990 with
	// implicit TLS.
	Host string

	// Username defaults to "anonymous", which ignores Password.
	Username string
	Password string

	// Directory is changed into before listing. Empty means the login
	// directory, usually "/".
	Directory string

	// Timeout bounds the recursive listing.
	Timeout time.Duration
}

func (r Request) withDefaults() Request {
	if r.Username == "" {
		r.Username = DefaultUsername
	}
	if r.Timeout == 0 {
		r.Timeout = DefaultTimeout
	}
	return r
}

// address returns Host with defaultPort appended when it carries no port.
func (r Request) address(defaultPort string) string {
	if _, _, err := net.SplitHostPort(r.Host); err == nil {
		return r.Host
	}
	host := strings.TrimSuffix(strings.TrimPrefix(r.Host, "["), "]")
	return net.JoinHostPort(host, defaultPort)
}

func (r Request) credentials() (user, pass string) {
	if r.Username == DefaultUsername {
		return DefaultUsername, anonymousPassword
	}
	return r.Username, r.Password
}

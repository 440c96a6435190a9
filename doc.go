// Package ftpsize measures how much storage a directory tree on an FTP server
// holds.
//
// # Overview
//
// A Prober connects to the server, logs in, changes to the requested
// directory and asks for a single recursive listing (LIST -Rt). The listing
// is captured as text, the size column of every regular file entry is summed,
// and the total is reported as a human-readable string such as "3.1 kB".
//
//	p := ftpsize.New(ftpsize.WithConnectTimeout(10 * time.Second))
//	res := p.Probe(ctx, ftpsize.Request{
//	    Host:      "ftp.example.com",
//	    Directory: "/pub",
//	    Timeout:   time.Minute,
//	})
//	if !res.OK() {
//	    log.Fatal(res.Err)
//	}
//	fmt.Println(res.Size)
//
// # Time Limits
//
// Two limits apply. The connect timeout bounds dialing and each command/reply
// exchange before and after the listing (greeting, TLS, login, CWD, QUIT).
// Request.Timeout alone bounds the recursive listing, from sending LIST to the
// completion reply: the listing runs on its own goroutine, and if the deadline
// passes first the connection is closed underneath it and the probe fails
// with ErrTimeout. No partial total is ever reported.
//
// # Listing Format
//
// Only the first character of each listing line decides whether it counts:
// lines starting with 'd' (directories), 'l' (symbolic links) or '.'
// (subdirectory headers such as "./pub:") are ignored, as are blank lines.
// Every other line contributes its fifth whitespace-separated field as a
// byte count. See ClassifyLine and ParseListing.
//
// # Errors
//
// Failures are reported as *Error values whose Kind is one of ErrConnection,
// ErrAuthentication, ErrTimeout or ErrParse; errors.Is matches both the kind
// and the underlying cause.
package ftpsize

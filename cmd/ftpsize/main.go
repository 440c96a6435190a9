// Command ftpsize reports the total size of the files under a directory on an
// FTP server.
//
// Usage:
//
//	ftpsize --host ftp.example.com [-u user -p pass] [-d /pub] [-t 60]
//
// Every flag can also be set through an FTPSIZE_<FLAG> environment variable
// (dashes become underscores) or a --config file. The exit status is 0 on
// success, 1 when the probe fails and 2 on invalid usage.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

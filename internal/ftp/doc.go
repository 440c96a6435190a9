// Package ftp implements the small slice of an FTP client that ftpsize needs:
// a control connection (plain, explicit TLS or implicit TLS, optionally through
// a SOCKS5 proxy), login, directory changes and raw LIST capture over a passive
// data connection.
//
// Basic usage:
//
//	client, err := ftp.Dial(ctx, "ftp.example.com:21", ftp.WithTimeout(10*time.Second))
//	if err != nil {
//	    return err
//	}
//	defer client.Quit()
//
//	if err := client.Login("anonymous", "anonymous@"); err != nil {
//	    return err
//	}
//	listing, err := client.RawList("-Rt")
//
// A Client serializes its commands. Close is the one method that may be called
// concurrently with a blocked command: it tears down the control and data
// sockets so the blocked call returns with an error.
//
// Server replies that do not match the expected code are returned as
// *ProtocolError values carrying the command, reply text and reply code.
package ftp

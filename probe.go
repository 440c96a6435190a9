package ftpsize

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gonzalop/ftpsize/internal/ftp"
)

// DefaultConnectTimeout is the connect/operation timeout used when
// WithConnectTimeout is not given.
const DefaultConnectTimeout = 15 * time.Second

// Prober measures directory trees on FTP servers. A Prober holds no
// per-request state and may be used by several goroutines at once.
type Prober struct {
	logger         *slog.Logger
	connectTimeout time.Duration
	tlsMode        TLSMode
	tlsConfig      *tls.Config
	proxyURL       string
	dialer         Dialer
	strict         bool
	pasv           bool
}

// New returns a Prober configured by opts.
func New(opts ...Option) *Prober {
	p := &Prober{
		logger:         slog.New(slog.DiscardHandler),
		connectTimeout: DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe measures req and folds any failure into the Result.
func (p *Prober) Probe(ctx context.Context, req Request) Result {
	sum, err := p.Measure(ctx, req)
	if err != nil {
		return Result{Err: err}
	}
	return Result{
		Size:    FormatSize(sum.Bytes),
		Summary: sum,
	}
}

// Measure connects, lists req.Directory recursively and sums the listing.
// The returned error is always an *Error.
func (p *Prober) Measure(ctx context.Context, req Request) (Summary, error) {
	req = req.withDefaults()
	if req.Host == "" {
		return Summary{}, &Error{Kind: ErrConnection, Op: "connect", Err: errors.New("no host given")}
	}

	addr := req.address(p.defaultPort())
	logger := p.logger.With("addr", addr)
	logger.Info("probing directory size", "user", req.Username, "directory", req.Directory, "timeout", req.Timeout)

	client, err := ftp.Dial(ctx, addr, p.clientOptions()...)
	if err != nil {
		return Summary{}, interrupted(ctx, &Error{Kind: ErrConnection, Op: "connect to " + addr, Err: err})
	}
	defer client.Close()

	// Login and CWD have no context of their own; cancelling ctx drops the
	// connection underneath them.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	user, pass := req.credentials()
	if err := client.Login(user, pass); err != nil {
		return Summary{}, interrupted(ctx, classify("login as "+user, err))
	}

	if req.Directory != "" {
		if err := client.ChangeDir(req.Directory); err != nil {
			return Summary{}, interrupted(ctx, classify("change directory to "+req.Directory, err))
		}
	}

	listing, err := p.list(ctx, client, req.Timeout)
	if err != nil {
		return Summary{}, err
	}
	_ = client.Quit()

	sum, err := parseListing(listing, p.strict, logger)
	if err != nil {
		return Summary{}, err
	}

	logger.Info("directory measured", "bytes", sum.Bytes, "files", sum.Files, "skipped", sum.Skipped)
	return sum, nil
}

// list fetches the recursive listing, giving up after timeout. RawList has
// no cancellation of its own, so it runs on a separate goroutine; when the
// deadline wins, closing the client unblocks it and its result is dropped.
func (p *Prober) list(ctx context.Context, client *ftp.Client, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type listing struct {
		text string
		err  error
	}
	done := make(chan listing, 1)
	go func() {
		text, err := client.RawList("-Rt")
		done <- listing{text: text, err: err}
	}()

	select {
	case l := <-done:
		if l.err == nil {
			return l.text, nil
		}
		// A listing torn down by cancellation is reported as such below.
		if ctx.Err() == nil {
			return "", classify("list", l.err)
		}
	case <-ctx.Done():
	}

	_ = client.Close()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		p.logger.Warn("listing deadline exceeded, connection closed", "timeout", timeout)
		return "", &Error{Kind: ErrTimeout, Op: "list", Err: fmt.Errorf("max timeout of %s reached", formatTimeout(timeout))}
	}
	return "", &Error{Kind: ErrConnection, Op: "list", Err: ctx.Err()}
}

// interrupted replaces err with the context's error when ctx ended first, so
// a cancelled probe reports the cancellation rather than the closed socket it
// caused.
func interrupted(ctx context.Context, err *Error) *Error {
	if ctx.Err() == nil {
		return err
	}
	return &Error{Kind: ErrConnection, Op: err.Op, Err: ctx.Err()}
}

func (p *Prober) defaultPort() string {
	if p.tlsMode == TLSImplicit {
		return "990"
	}
	return "21"
}

func (p *Prober) clientOptions() []ftp.Option {
	opts := []ftp.Option{
		ftp.WithTimeout(p.connectTimeout),
		ftp.WithLogger(p.logger),
	}
	if p.dialer != nil {
		opts = append(opts, ftp.WithDialer(p.dialer))
	}
	if p.proxyURL != "" {
		opts = append(opts, ftp.WithProxy(p.proxyURL))
	}
	if p.pasv {
		opts = append(opts, ftp.WithDisableEPSV())
	}
	switch p.tlsMode {
	case TLSExplicit:
		opts = append(opts, ftp.WithExplicitTLS(p.tlsConfig))
	case TLSImplicit:
		opts = append(opts, ftp.WithImplicitTLS(p.tlsConfig))
	}
	return opts
}

// formatTimeout prints whole seconds the way users type them ("60 seconds")
// and anything finer as a duration.
func formatTimeout(d time.Duration) string {
	if d >= time.Second && d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", d/time.Second)
	}
	return d.String()
}

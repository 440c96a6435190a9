package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gonzalop/ftpsize"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// run executes the command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	exitCode := exitOK
	cmd := newRootCmd(stdout, stderr, &exitCode)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.Name())
		return exitUsage
	}
	return exitCode
}

func newRootCmd(stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "ftpsize --host HOST [flags]",
		Short:         "Report the total size of the files under an FTP directory.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cmd.Flags())
			if err != nil {
				return err
			}
			*exitCode = probe(cmd.Context(), cfg, stdout, stderr)
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.Flags()
	flags.String("host", "", "FTP hostname or IP address, optionally with :port (required)")
	flags.StringP("username", "u", ftpsize.DefaultUsername, "FTP username")
	flags.StringP("password", "p", "", "FTP password")
	flags.StringP("directory", "d", "", `FTP directory to measure (default "/")`)
	flags.IntP("timeout", "t", int(ftpsize.DefaultTimeout.Seconds()), "max seconds to wait for the directory listing")
	flags.Int("connect-timeout", int(ftpsize.DefaultConnectTimeout.Seconds()), "max seconds for connecting and for each command outside the listing")
	flags.String("tls", "none", "TLS mode: none, explicit or implicit")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.String("proxy", "", "SOCKS5 proxy URL, e.g. socks5://127.0.0.1:1080")
	flags.Bool("pasv", false, "use PASV only, never EPSV, for data connections")
	flags.Bool("strict", false, "fail on listing lines without a size field instead of skipping them")
	flags.Bool("debug", false, "log the FTP conversation to stderr")
	flags.String("config", "", "config file (JSON, YAML or TOML)")

	return cmd
}

// probe prints the configuration, runs the probe and prints its outcome.
func probe(ctx context.Context, cfg config, stdout, stderr io.Writer) int {
	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	dir := cfg.Request.Directory
	if dir == "" {
		dir = "/"
	}
	fmt.Fprintf(stdout, "[INFO] FTP Host: %s\n", cfg.Request.Host)
	fmt.Fprintf(stdout, "[INFO] FTP Username: %s\n", cfg.Request.Username)
	fmt.Fprintf(stdout, "[INFO] FTP Directory: %s\n", dir)
	fmt.Fprintf(stdout, "[INFO] FTP Timeout: %d secs\n", int(cfg.Request.Timeout.Seconds()))

	opts := []ftpsize.Option{
		ftpsize.WithLogger(logger),
		ftpsize.WithConnectTimeout(cfg.ConnectTimeout),
	}
	if cfg.TLSMode != ftpsize.TLSNone {
		var tlsConfig *tls.Config
		if cfg.Insecure {
			tlsConfig = &tls.Config{InsecureSkipVerify: true}
		}
		opts = append(opts, ftpsize.WithTLS(cfg.TLSMode, tlsConfig))
	}
	if cfg.Proxy != "" {
		opts = append(opts, ftpsize.WithProxy(cfg.Proxy))
	}
	if cfg.PASV {
		opts = append(opts, ftpsize.WithPASV())
	}
	if cfg.Strict {
		opts = append(opts, ftpsize.WithStrictParsing())
	}

	res := ftpsize.New(opts...).Probe(ctx, cfg.Request)
	if !res.OK() {
		fmt.Fprintf(stdout, "[ERROR] %v\n", res.Err)
		return exitFailure
	}

	fmt.Fprintf(stdout, "[SUCCESS] Total File Size in Directory: %s\n", res.Size)
	return exitOK
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gonzalop/ftpsize/internal/ftptest"
)

const listing = "-rw-r--r-- 1 u g 1024 Jan 1 00:00 a.txt\r\n" +
	"-rw-r--r-- 1 u g 2048 Jan 1 00:00 b.txt\r\n"

func runCmd(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestRun_Success(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(t, ftptest.WithListing("/pub", listing))

	stdout, stderr, code := runCmd(t, "--host", srv.Addr, "-d", "/pub", "-t", "5")
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d; stderr:\n%s", code, exitOK, stderr)
	}

	want := []string{
		"[INFO] FTP Host: " + srv.Addr,
		"[INFO] FTP Username: anonymous",
		"[INFO] FTP Directory: /pub",
		"[INFO] FTP Timeout: 5 secs",
		"[SUCCESS] Total File Size in Directory: 3.1 kB",
	}
	if diff := cmp.Diff(want, lines(stdout)); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_Defaults(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(t)

	stdout, _, code := runCmd(t, "--host", srv.Addr)
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}

	want := []string{
		"[INFO] FTP Host: " + srv.Addr,
		"[INFO] FTP Username: anonymous",
		"[INFO] FTP Directory: /",
		"[INFO] FTP Timeout: 60 secs",
		"[SUCCESS] Total File Size in Directory: 0 Bytes",
	}
	if diff := cmp.Diff(want, lines(stdout)); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_ProbeFailure(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(t, ftptest.WithUser("alice", "secret"))

	stdout, _, code := runCmd(t, "--host", srv.Addr, "-u", "alice", "-p", "wrong")
	if code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}

	out := lines(stdout)
	last := out[len(out)-1]
	if !strings.HasPrefix(last, "[ERROR] authentication error") {
		t.Errorf("last line = %q, want an [ERROR] authentication line", last)
	}
	if strings.Contains(stdout, "[SUCCESS]") {
		t.Error("failure printed a success line")
	}
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing host", nil, "--host is required"},
		{"unknown flag", []string{"--host", "h", "--nope"}, "unknown flag"},
		{"bad timeout", []string{"--host", "h", "-t", "0"}, "--timeout must be positive"},
		{"bad tls mode", []string{"--host", "h", "--tls", "ssl"}, "unknown TLS mode"},
		{"positional argument", []string{"--host", "h", "extra"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stdout, stderr, code := runCmd(t, tt.args...)
			if code != exitUsage {
				t.Errorf("exit code = %d, want %d", code, exitUsage)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr = %q, want it to mention %q", stderr, tt.want)
			}
			if stdout != "" {
				t.Errorf("usage error wrote to stdout: %q", stdout)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	t.Parallel()
	stdout, _, code := runCmd(t, "--help")
	if code != exitOK {
		t.Errorf("exit code = %d, want %d", code, exitOK)
	}
	for _, flag := range []string{"--host", "-u, --username", "-p, --password", "-d, --directory", "-t, --timeout"} {
		if !strings.Contains(stdout, flag) {
			t.Errorf("help does not mention %q", flag)
		}
	}
}

func TestRun_Environment(t *testing.T) {
	srv := ftptest.New(t, ftptest.WithListing("/env", listing))
	t.Setenv("FTPSIZE_HOST", srv.Addr)
	t.Setenv("FTPSIZE_DIRECTORY", "/env")
	t.Setenv("FTPSIZE_CONNECT_TIMEOUT", "5")

	stdout, stderr, code := runCmd(t)
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d; stderr:\n%s", code, exitOK, stderr)
	}
	if !strings.Contains(stdout, "[INFO] FTP Directory: /env") {
		t.Errorf("environment directory not used:\n%s", stdout)
	}
	if !strings.Contains(stdout, "[SUCCESS] Total File Size in Directory: 3.1 kB") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(t, ftptest.WithListing("/conf", listing))

	path := filepath.Join(t.TempDir(), "ftpsize.yaml")
	content := "host: " + srv.Addr + "\ndirectory: /conf\ntimeout: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// Flags win over the file.
	stdout, stderr, code := runCmd(t, "--config", path, "-t", "9")
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d; stderr:\n%s", code, exitOK, stderr)
	}
	for _, want := range []string{
		"[INFO] FTP Directory: /conf",
		"[INFO] FTP Timeout: 9 secs",
		"[SUCCESS] Total File Size in Directory: 3.1 kB",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRun_MissingConfigFile(t *testing.T) {
	t.Parallel()
	_, stderr, code := runCmd(t, "--host", "h", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if code != exitUsage {
		t.Errorf("exit code = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr, "failed to read config file") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_TLSAndPASV(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(t, ftptest.WithExplicitTLS(), ftptest.WithListing("/", listing))

	stdout, stderr, code := runCmd(t, "--host", srv.Addr, "--tls", "explicit", "--insecure", "--pasv")
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d; stdout:\n%s\nstderr:\n%s", code, exitOK, stdout, stderr)
	}
	if !strings.Contains(stdout, "[SUCCESS] Total File Size in Directory: 3.1 kB") {
		t.Errorf("unexpected output:\n%s", stdout)
	}

	cmds := srv.Commands()
	for _, want := range []string{"AUTH TLS", "PROT P", "PASV"} {
		if !slices.Contains(cmds, want) {
			t.Errorf("command %q not sent: %q", want, cmds)
		}
	}
	if slices.Contains(cmds, "EPSV") {
		t.Errorf("EPSV sent with --pasv: %q", cmds)
	}
}

func TestRun_TLSRejectsSelfSignedWithoutInsecure(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(t, ftptest.WithExplicitTLS())

	stdout, _, code := runCmd(t, "--host", srv.Addr, "--tls", "explicit")
	if code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stdout, "[ERROR] connection error") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

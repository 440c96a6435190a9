package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gonzalop/ftpsize"
)

// config is the fully resolved command-line configuration.
type config struct {
	Request        ftpsize.Request
	ConnectTimeout time.Duration
	TLSMode        ftpsize.TLSMode
	Insecure       bool
	Proxy          string
	PASV           bool
	Strict         bool
	Debug          bool
}

// loadConfig resolves every setting from, in order of precedence, explicit
// flags, FTPSIZE_* environment variables, the optional config file and the
// flag defaults.
func loadConfig(v *viper.Viper, flags *pflag.FlagSet) (config, error) {
	v.SetEnvPrefix("ftpsize")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return config{}, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	host := strings.TrimSpace(v.GetString("host"))
	if host == "" {
		return config{}, errors.New("--host is required")
	}

	timeout := v.GetInt("timeout")
	if timeout <= 0 {
		return config{}, fmt.Errorf("--timeout must be positive, got %d", timeout)
	}
	connectTimeout := v.GetInt("connect-timeout")
	if connectTimeout <= 0 {
		return config{}, fmt.Errorf("--connect-timeout must be positive, got %d", connectTimeout)
	}

	mode, err := ftpsize.ParseTLSMode(v.GetString("tls"))
	if err != nil {
		return config{}, err
	}

	username := v.GetString("username")
	if username == "" {
		username = ftpsize.DefaultUsername
	}

	return config{
		Request: ftpsize.Request{
			Host:      host,
			Username:  username,
			Password:  v.GetString("password"),
			Directory: v.GetString("directory"),
			Timeout:   time.Duration(timeout) * time.Second,
		},
		ConnectTimeout: time.Duration(connectTimeout) * time.Second,
		TLSMode:        mode,
		Insecure:       v.GetBool("insecure"),
		Proxy:          v.GetString("proxy"),
		PASV:           v.GetBool("pasv"),
		Strict:         v.GetBool("strict"),
		Debug:          v.GetBool("debug"),
	}, nil
}

// Package config loads the static run configuration from a TOML or YAML file,
// DROPSYNC_* environment variables and command line flags, in increasing order
// of precedence.
package config

import (
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/yarkm13/dropsync/internal/normalize"
	"github.com/yarkm13/dropsync/internal/remote"
	"github.com/yarkm13/dropsync/internal/transfer"
)

// Directory maps one remote directory to a local destination.
type Directory struct {
	Remote string `toml:"remote" yaml:"remote"`
	Local  string `toml:"local" yaml:"local"`
}

// Server is one credential: a URL such as sftp://user@host:22 plus the
// directories to sync with it.
type Server struct {
	URL                string      `toml:"url" yaml:"url"`
	Password           string      `toml:"password" yaml:"password"`
	PasswordEnv        string      `toml:"password_env" yaml:"password_env"`
	KnownHosts         string      `toml:"known_hosts" yaml:"known_hosts"`
	HostKeyFingerprint string      `toml:"host_key_fingerprint" yaml:"host_key_fingerprint"`
	Directories        []Directory `toml:"directories" yaml:"directories"`
}

type Config struct {
	Suffix          string
	Charset         string
	Exclude         []string
	Workers         int
	Timeout         time.Duration
	ConnectAttempts int
	CreateLocalBase bool
	VerifySize      bool
	VerifyPDF       bool

	CatalogFile string
	MetricsFile string
	PostgresDSN string

	LogLevel string
	LogFile  string

	Servers []Server
}

func DefaultConfig() Config {
	return Config{
		Suffix:          ".pdf",
		Charset:         normalize.DefaultCharset,
		Workers:         1,
		Timeout:         30 * time.Second,
		ConnectAttempts: 3,
		VerifySize:      true,
		LogLevel:        "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Filter().Validate(); err != nil {
		return err
	}
	if _, err := normalize.New(c.Charset); err != nil {
		return err
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.ConnectAttempts <= 0 {
		return errors.New("connect attempts must be positive")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return errors.Errorf("log level: %w", err)
	}
	if len(c.Servers) == 0 {
		return errors.New("at least one server is required")
	}

	// One remote directory may feed only one destination, otherwise the
	// first task would delete what the second never saw.
	destinations := map[string]string{}
	for i, s := range c.Servers {
		u, err := parseServerURL(s.URL)
		if err != nil {
			return errors.Errorf("server %d: %w", i+1, err)
		}
		if len(s.Directories) == 0 {
			return errors.Errorf("server %s: no directories", u.Redacted())
		}
		for _, d := range s.Directories {
			if d.Remote == "" || d.Local == "" {
				return errors.Errorf("server %s: directory needs both remote and local", u.Redacted())
			}
			key := u.Hostname() + "\x00" + u.Port() + "\x00" + u.User.Username() + "\x00" + path.Clean(d.Remote)
			local := filepath.Clean(d.Local)
			if prev, ok := destinations[key]; ok && prev != local {
				return errors.Errorf("server %s: remote %s is mapped to both %s and %s", u.Redacted(), d.Remote, prev, local)
			}
			destinations[key] = local
		}
	}
	return nil
}

// Filter returns the candidate filter described by the configuration.
func (c *Config) Filter() transfer.Filter {
	return transfer.Filter{Suffix: c.Suffix, Exclude: c.Exclude}
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	servers := make([]Server, len(c.Servers))
	for i, s := range c.Servers {
		if s.Password != "" {
			s.Password = "*****"
		}
		if u, err := url.Parse(s.URL); err == nil {
			s.URL = u.Redacted()
		}
		servers[i] = s
	}
	c.Servers = servers
	if c.PostgresDSN != "" {
		c.PostgresDSN = "*****"
	}
	return c
}

func parseServerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Errorf("invalid url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if !remote.NewFactory().Accept(u.Scheme) {
		return nil, errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.Errorf("url %s has no host", u.Redacted())
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, errors.Errorf("url %s has no user", u.Redacted())
	}
	return u, nil
}

// configSetter applies values unless the matching flag was set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return errors.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setIntFromString is setInt for environment variables.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return errors.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

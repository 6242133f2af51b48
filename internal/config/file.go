package config

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config with durations as strings and optional booleans.
type FileConfig struct {
	Suffix          string   `toml:"suffix" yaml:"suffix"`
	Charset         string   `toml:"charset" yaml:"charset"`
	Exclude         []string `toml:"exclude" yaml:"exclude"`
	Workers         int      `toml:"workers" yaml:"workers"`
	Timeout         string   `toml:"timeout" yaml:"timeout"`
	ConnectAttempts int      `toml:"connect_attempts" yaml:"connect_attempts"`
	CreateLocalBase *bool    `toml:"create_local_base" yaml:"create_local_base"`
	VerifySize      *bool    `toml:"verify_size" yaml:"verify_size"`
	VerifyPDF       *bool    `toml:"verify_pdf" yaml:"verify_pdf"`
	CatalogFile     string   `toml:"catalog_file" yaml:"catalog_file"`
	MetricsFile     string   `toml:"metrics_file" yaml:"metrics_file"`
	PostgresDSN     string   `toml:"postgres_dsn" yaml:"postgres_dsn"`
	LogLevel        string   `toml:"log_level" yaml:"log_level"`
	LogFile         string   `toml:"log_file" yaml:"log_file"`
	Servers         []Server `toml:"servers" yaml:"servers"`
}

// LoadFileConfig reads a YAML file when path ends in .yaml or .yml and a TOML
// file otherwise.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, errors.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.dropsync/config.toml, or "" without a home directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".dropsync", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies fc to cfg, leaving explicitly set flags alone.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("suffix", fc.Suffix, &cfg.Suffix)
	s.setString("charset", fc.Charset, &cfg.Charset)
	s.setString("catalog", fc.CatalogFile, &cfg.CatalogFile)
	s.setString("metrics-file", fc.MetricsFile, &cfg.MetricsFile)
	s.setString("postgres-dsn", fc.PostgresDSN, &cfg.PostgresDSN)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)
	s.setStrings("exclude", fc.Exclude, &cfg.Exclude)

	s.setInt("workers", fc.Workers, &cfg.Workers)
	s.setInt("connect-attempts", fc.ConnectAttempts, &cfg.ConnectAttempts)
	if err := s.setDuration("timeout", fc.Timeout, &cfg.Timeout); err != nil {
		return err
	}

	s.setBool("create-local-base", fc.CreateLocalBase, &cfg.CreateLocalBase)
	s.setBool("verify-size", fc.VerifySize, &cfg.VerifySize)
	s.setBool("verify-pdf", fc.VerifyPDF, &cfg.VerifyPDF)

	if len(fc.Servers) > 0 {
		cfg.Servers = append([]Server(nil), fc.Servers...)
	}
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

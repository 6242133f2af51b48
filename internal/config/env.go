package config

import (
	"os"
	"strings"
)

// ApplyEnvConfig applies DROPSYNC_* environment variables, leaving explicitly
// set flags alone. It fails on a malformed number or duration.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("suffix", os.Getenv("DROPSYNC_SUFFIX"), &cfg.Suffix)
	s.setString("charset", os.Getenv("DROPSYNC_CHARSET"), &cfg.Charset)
	s.setString("catalog", os.Getenv("DROPSYNC_CATALOG_FILE"), &cfg.CatalogFile)
	s.setString("metrics-file", os.Getenv("DROPSYNC_METRICS_FILE"), &cfg.MetricsFile)
	s.setString("postgres-dsn", os.Getenv("DROPSYNC_POSTGRES_DSN"), &cfg.PostgresDSN)
	s.setString("log-level", os.Getenv("DROPSYNC_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-file", os.Getenv("DROPSYNC_LOG_FILE"), &cfg.LogFile)
	if v := os.Getenv("DROPSYNC_EXCLUDE"); v != "" {
		s.setStrings("exclude", strings.Split(v, ","), &cfg.Exclude)
	}

	if err := s.setIntFromString("workers", os.Getenv("DROPSYNC_WORKERS"), &cfg.Workers); err != nil {
		return err
	}
	if err := s.setIntFromString("connect-attempts", os.Getenv("DROPSYNC_CONNECT_ATTEMPTS"), &cfg.ConnectAttempts); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("DROPSYNC_TIMEOUT"), &cfg.Timeout); err != nil {
		return err
	}

	s.setBoolFromString("create-local-base", os.Getenv("DROPSYNC_CREATE_LOCAL_BASE"), &cfg.CreateLocalBase)
	s.setBoolFromString("verify-size", os.Getenv("DROPSYNC_VERIFY_SIZE"), &cfg.VerifySize)
	s.setBoolFromString("verify-pdf", os.Getenv("DROPSYNC_VERIFY_PDF"), &cfg.VerifyPDF)

	return nil
}

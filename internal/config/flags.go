package config

import (
	pflag "github.com/spf13/pflag"
)

// BindFlags registers the command line flags backed by cfg. Flag names are
// the keys the file and environment layers check before overriding a value.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Suffix, "suffix", cfg.Suffix, "file name suffix to transfer, case-insensitive")
	fs.StringVar(&cfg.Charset, "charset", cfg.Charset, "encoding of remote file names")
	fs.StringSliceVar(&cfg.Exclude, "exclude", cfg.Exclude, "glob of remote names to leave alone, repeatable")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "servers processed in parallel")
	fs.IntVar(&cfg.ConnectAttempts, "connect-attempts", cfg.ConnectAttempts, "connection attempts per server")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "network timeout for dialing and each read or write")
	fs.BoolVar(&cfg.CreateLocalBase, "create-local-base", cfg.CreateLocalBase, "create missing local destination folders")
	fs.BoolVar(&cfg.VerifySize, "verify-size", cfg.VerifySize, "compare downloaded size with the server's")
	fs.BoolVar(&cfg.VerifyPDF, "verify-pdf", cfg.VerifyPDF, "validate PDF files before keeping them")
	fs.StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "write the run catalog to this .yaml or .json file")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write Prometheus metrics to this textfile")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "also record the catalog in this PostgreSQL database")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "append JSON logs to this file")
}

// ChangedFlags returns the names of the flags set on the command line.
func ChangedFlags(fs *pflag.FlagSet) map[string]bool {
	changed := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

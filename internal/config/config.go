// Package config provides functionality for managing configuration options
// for the server using command-line flags, a JSON config file and
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
)

// Options holds the configuration values for the server.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"addr"`

	// SeedFile is a YAML directory seed. Empty means the built-in directory.
	SeedFile string `json:"seed_file"`

	// DatabaseDSN, when set, loads the directory from PostgreSQL instead
	// of a seed file.
	DatabaseDSN string `json:"database_dsn"`

	// MachineToken overrides the token from the seed.
	MachineToken string `json:"machine_token"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`

	// AllowedOrigins is a comma-separated CORS allow list. Empty disables CORS.
	AllowedOrigins string `json:"allowed_origins"`

	// Config is the path to the JSON config file.
	Config string `json:"-"`
}

// TLSEnabled reports whether both certificate and key are configured.
func (o *Options) TLSEnabled() bool {
	return o.TLSCert != "" && o.TLSKey != ""
}

// envOverrides maps environment variables onto option fields.
var envOverrides = []struct {
	name  string
	field func(*Options) *string
}{
	{"SERVER_ADDRESS", func(o *Options) *string { return &o.Addr }},
	{"SEED_FILE", func(o *Options) *string { return &o.SeedFile }},
	{"DATABASE_DSN", func(o *Options) *string { return &o.DatabaseDSN }},
	{"MACHINE_TOKEN", func(o *Options) *string { return &o.MachineToken }},
	{"TLS_CERT", func(o *Options) *string { return &o.TLSCert }},
	{"TLS_KEY", func(o *Options) *string { return &o.TLSKey }},
	{"LOG_LEVEL", func(o *Options) *string { return &o.LogLevel }},
	{"ALLOWED_ORIGINS", func(o *Options) *string { return &o.AllowedOrigins }},
}

// Parse parses the command-line flags, the optional JSON config file and
// environment variables, in that order of precedence from lowest to
// highest. It exits the process on invalid input.
func Parse() *Options {
	options, err := parse(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return options
}

func parse(fs *flag.FlagSet, args []string, lookupEnv func(string) (string, bool)) (*Options, error) {
	options := &Options{}

	fs.StringVar(&options.Addr, "a", "localhost:5000", "run on ip:port server")
	fs.StringVar(&options.SeedFile, "s", "", "path to YAML directory seed")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.MachineToken, "t", "", "machine token override")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "path to TLS certificate")
	fs.StringVar(&options.TLSKey, "tls-key", "", "path to TLS private key")
	fs.StringVar(&options.LogLevel, "l", "info", "log level")
	fs.StringVar(&options.AllowedOrigins, "cors", "", "comma-separated CORS origins")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath, ok := lookupEnv("CONFIG"); ok && configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		data, err := os.ReadFile(options.Config)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error while reading config file: %w", err)
		default:
			if err := json.Unmarshal(data, options); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	for _, env := range envOverrides {
		if v, ok := lookupEnv(env.name); ok && v != "" {
			*env.field(options) = v
		}
	}

	if (options.TLSCert == "") != (options.TLSKey == "") {
		return nil, errors.New("tls-cert and tls-key must be set together")
	}

	return options, nil
}

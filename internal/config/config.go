// Package config provides configuration management for sphinxserve.
//
// Configuration is loaded from four sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (SPHINXSERVE_ prefix)
//  3. Config file (.sphinxserve.yaml)
//  4. Built-in defaults
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/sphinxserve/internal/build"
	"github.com/hupe1980/sphinxserve/internal/project"
	"github.com/hupe1980/sphinxserve/internal/server"
	"github.com/hupe1980/sphinxserve/internal/watch"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// FileName is the base name of the auto-discovered config file.
const FileName = ".sphinxserve.yaml"

// Defaults for the serve settings.
const (
	DefaultHost            = "localhost"
	DefaultPort            = 8888
	DefaultOutputDir       = project.DefaultOutputDir
	DefaultBuilder         = build.DefaultCommand
	DefaultPollInterval    = time.Second
	DefaultShutdownTimeout = 3 * time.Second
	DefaultLaunchRetries   = 3
)

var (
	// DefaultExtensions are the source suffixes that trigger a rebuild.
	DefaultExtensions = watch.DefaultExtensions

	// DefaultFontHosts are the CDNs whose CSS @import rules are stripped.
	DefaultFontHosts = server.DefaultFontHosts
)

// Config represents the global configuration for sphinxserve.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// SourcePath is the documentation source directory. A positional
	// argument on the command line takes precedence.
	SourcePath string `mapstructure:"source-path" json:"sourcePath"`

	// OutputDir receives the rendered site. Relative paths are resolved
	// against SourcePath.
	OutputDir string `mapstructure:"output-dir" json:"outputDir"`

	// Socket is a host:port shorthand that overrides Host and Port.
	Socket string `mapstructure:"socket" json:"socket"`

	// Host and Port form the HTTP listen address.
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`

	// Extensions lists the source suffixes that trigger a rebuild.
	Extensions []string `mapstructure:"extensions" json:"extensions"`

	// Builder is the document compiler executable.
	Builder string `mapstructure:"builder" json:"builder"`

	// BuilderArgs are extra compiler arguments placed before the source
	// and output paths.
	BuilderArgs []string `mapstructure:"builder-args" json:"builderArgs"`

	// MinBuilderVersion is an optional semver constraint on the compiler.
	MinBuilderVersion string `mapstructure:"min-builder-version" json:"minBuilderVersion"`

	// Debounce is an optional quiet period applied to file events.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce"`

	// Polling selects stat polling instead of native file notifications.
	Polling bool `mapstructure:"polling" json:"polling"`

	// PollInterval is the scan period when Polling is set.
	PollInterval time.Duration `mapstructure:"poll-interval" json:"pollInterval"`

	// KeepGoing keeps serving the last good output after a failed rebuild.
	KeepGoing bool `mapstructure:"keep-going" json:"keepGoing"`

	// StripFontHosts lists CDNs whose CSS @import rules are removed.
	StripFontHosts []string `mapstructure:"strip-font-hosts" json:"stripFontHosts"`

	// LongPollTimeout bounds a single reload long-poll. Zero waits forever.
	LongPollTimeout time.Duration `mapstructure:"long-poll-timeout" json:"longPollTimeout"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" json:"shutdownTimeout"`

	// LaunchRetries is how often a transient compiler launch failure is retried.
	LaunchRetries int `mapstructure:"launch-retries" json:"launchRetries"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load() — not read from config itself.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:        LogLevelInfo,
		LogFormat:       LogFormatText,
		OutputDir:       DefaultOutputDir,
		Host:            DefaultHost,
		Port:            DefaultPort,
		Extensions:      append([]string(nil), DefaultExtensions...),
		Builder:         DefaultBuilder,
		PollInterval:    DefaultPollInterval,
		StripFontHosts:  append([]string(nil), DefaultFontHosts...),
		ShutdownTimeout: DefaultShutdownTimeout,
		LaunchRetries:   DefaultLaunchRetries,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if c.Host == "" {
		return errors.New("invalid host: must not be empty")
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 0 and 65535", c.Port)
	}

	if len(c.Extensions) == 0 {
		return errors.New("invalid extensions: at least one extension is required")
	}

	if c.Builder == "" {
		return errors.New("invalid builder: must not be empty")
	}

	if c.MinBuilderVersion != "" {
		if _, err := semver.NewConstraint(c.MinBuilderVersion); err != nil {
			return fmt.Errorf("invalid min-builder-version %q: %w", c.MinBuilderVersion, err)
		}
	}

	for name, d := range map[string]time.Duration{
		"debounce":          c.Debounce,
		"long-poll-timeout": c.LongPollTimeout,
		"shutdown-timeout":  c.ShutdownTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("invalid %s %s: must not be negative", name, d)
		}
	}

	if c.Polling && c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll-interval %s: must be positive when polling", c.PollInterval)
	}

	if c.LaunchRetries < 0 {
		return fmt.Errorf("invalid launch-retries %d: must not be negative", c.LaunchRetries)
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// ResolveOutputDir returns OutputDir, resolved against source when relative.
func (c *Config) ResolveOutputDir(source string) string {
	out := c.OutputDir
	if out == "" {
		out = DefaultOutputDir
	}

	if filepath.IsAbs(out) {
		return out
	}

	return filepath.Join(source, out)
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ParseSocket splits a host:port socket. An empty host means DefaultHost.
func ParseSocket(socket string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(socket)
	if err != nil {
		return "", 0, fmt.Errorf("invalid socket %q: %w", socket, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid socket %q: port must be a number between 0 and 65535", socket)
	}

	if host == "" {
		host = DefaultHost
	}

	return host, port, nil
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Store the resolved config file path so downstream code can locate it.
	cfg.ConfigFile = v.ConfigFileUsed()

	if cfg.Socket != "" {
		host, port, err := ParseSocket(cfg.Socket)
		if err != nil {
			return nil, err
		}

		cfg.Host, cfg.Port = host, port
	}

	cfg.Extensions = splitList(cfg.Extensions)
	cfg.StripFontHosts = splitList(cfg.StripFontHosts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// splitList flattens comma-separated entries, as produced by environment
// variables, and drops empty ones.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))

	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("no-color", d.NoColor)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("source-path", d.SourcePath)
	v.SetDefault("output-dir", d.OutputDir)
	v.SetDefault("socket", d.Socket)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("builder", d.Builder)
	v.SetDefault("builder-args", d.BuilderArgs)
	v.SetDefault("min-builder-version", d.MinBuilderVersion)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("polling", d.Polling)
	v.SetDefault("poll-interval", d.PollInterval)
	v.SetDefault("keep-going", d.KeepGoing)
	v.SetDefault("strip-font-hosts", d.StripFontHosts)
	v.SetDefault("long-poll-timeout", d.LongPollTimeout)
	v.SetDefault("shutdown-timeout", d.ShutdownTimeout)
	v.SetDefault("launch-retries", d.LaunchRetries)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("SPHINXSERVE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	// Auto-discovery mode.
	v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "sphinxserve"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found → perfectly fine in auto-discovery.
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		// Found a file but it was malformed.
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	// Bind the current command's own flags.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	// Walk up to root and bind all persistent flags at each level.
	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}

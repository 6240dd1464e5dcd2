package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.chatsync/config.toml.
type Config struct {
	Server  ConfigServer  `toml:"server" yaml:"server"`
	Auth    ConfigAuth    `toml:"auth" yaml:"auth"`
	Sync    ConfigSync    `toml:"sync" yaml:"sync"`
	Log     ConfigLog     `toml:"log" yaml:"log"`
	Metrics ConfigMetrics `toml:"metrics" yaml:"metrics"`
}

// ConfigServer holds the chat server address.
type ConfigServer struct {
	BaseURL    string   `toml:"base_url" yaml:"base_url"`
	SocketPath string   `toml:"socket_path" yaml:"socket_path"`
	Timeout    Duration `toml:"timeout" yaml:"timeout"`
}

// ConfigAuth holds the session credentials.
type ConfigAuth struct {
	Token  string `toml:"token" yaml:"token"`
	UserID string `toml:"user_id" yaml:"user_id"`
}

// ConfigSync tunes retries and timeouts.
type ConfigSync struct {
	RetryDelay        Duration `toml:"retry_delay" yaml:"retry_delay"`
	BootstrapInterval Duration `toml:"bootstrap_interval" yaml:"bootstrap_interval"`
	PendingTimeout    Duration `toml:"pending_timeout" yaml:"pending_timeout"`
	ReconnectMaxDelay Duration `toml:"reconnect_max_delay" yaml:"reconnect_max_delay"`
	MaxReplyAttempts  int      `toml:"max_reply_attempts" yaml:"max_reply_attempts"`
}

// ConfigLog selects the log handler.
type ConfigLog struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// ConfigMetrics enables the Prometheus endpoint.
type ConfigMetrics struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (c *Config) defaults() {
	if c.Server.SocketPath == "" {
		c.Server.SocketPath = "/socket"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = Duration(30 * time.Second)
	}
	if c.Sync.RetryDelay == 0 {
		c.Sync.RetryDelay = Duration(500 * time.Millisecond)
	}
	if c.Sync.BootstrapInterval == 0 {
		c.Sync.BootstrapInterval = Duration(5 * time.Second)
	}
	if c.Sync.PendingTimeout == 0 {
		c.Sync.PendingTimeout = Duration(30 * time.Second)
	}
	if c.Sync.ReconnectMaxDelay == 0 {
		c.Sync.ReconnectMaxDelay = Duration(30 * time.Second)
	}
	if c.Sync.MaxReplyAttempts == 0 {
		c.Sync.MaxReplyAttempts = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the settings needed to talk to a server.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return errors.New("server.base_url is not set; run 'chatsync config set server.base_url <url>'")
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("server.base_url must start with http:// or https://, got %q", c.Server.BaseURL)
	}
	if c.Sync.MaxReplyAttempts < 0 {
		return fmt.Errorf("sync.max_reply_attempts must not be negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.chatsync, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".chatsync")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the file config commands read and write: the --config
// flag when given, ~/.chatsync/config.toml otherwise.
func configPath() (string, error) {
	if configFlag != "" {
		return configFlag, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig layers defaults, the user file, an explicit --config file and
// the CHATSYNC_* environment.
func loadConfig() (*Config, error) {
	var cfg Config
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	if err := readConfigFile(filepath.Join(dir, "config.toml"), &cfg); err != nil {
		return nil, err
	}
	if configFlag != "" {
		if err := readConfigFile(configFlag, &cfg); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv("CHATSYNC_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("CHATSYNC_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	cfg.defaults()
	return &cfg, nil
}

// readConfigFile merges a TOML or YAML file into cfg. A missing file is not
// an error.
func readConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	return nil
}

// saveConfig writes the config back to disk in the format of its extension.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "server.base_url").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. server.base_url)")
	}
	section, field := parts[0], parts[1]

	setDuration := func(d *Duration) error { return d.UnmarshalText([]byte(value)) }

	switch section {
	case "server":
		switch field {
		case "base_url":
			cfg.Server.BaseURL = strings.TrimRight(value, "/")
		case "socket_path":
			cfg.Server.SocketPath = value
		case "timeout":
			return setDuration(&cfg.Server.Timeout)
		default:
			return fmt.Errorf("unknown field %q in section [server]", field)
		}
	case "auth":
		switch field {
		case "token":
			cfg.Auth.Token = value
		case "user_id":
			cfg.Auth.UserID = value
		default:
			return fmt.Errorf("unknown field %q in section [auth]", field)
		}
	case "sync":
		switch field {
		case "retry_delay":
			return setDuration(&cfg.Sync.RetryDelay)
		case "bootstrap_interval":
			return setDuration(&cfg.Sync.BootstrapInterval)
		case "pending_timeout":
			return setDuration(&cfg.Sync.PendingTimeout)
		case "reconnect_max_delay":
			return setDuration(&cfg.Sync.ReconnectMaxDelay)
		case "max_reply_attempts":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("max_reply_attempts: %w", err)
			}
			cfg.Sync.MaxReplyAttempts = n
		default:
			return fmt.Errorf("unknown field %q in section [sync]", field)
		}
	case "log":
		switch field {
		case "level":
			cfg.Log.Level = value
		case "format":
			cfg.Log.Format = value
		default:
			return fmt.Errorf("unknown field %q in section [log]", field)
		}
	case "metrics":
		switch field {
		case "addr":
			cfg.Metrics.Addr = value
		default:
			return fmt.Errorf("unknown field %q in section [metrics]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: server, auth, sync, log, metrics)", section)
	}
	return nil
}

// newLogger builds the process logger from the [log] section.
func newLogger(cfg ConfigLog) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ============================================================================
// Root command
// ============================================================================

var (
	configFlag  string
	metricsFlag string
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Chat sync client CLI",
	Long:  "Command-line client for a guild/channel/DM chat server.\nRead history, follow channels live, send messages and manage configuration.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (TOML or YAML) layered over ~/.chatsync/config.toml")
	rootCmd.PersistentFlags().StringVar(&metricsFlag, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().BoolVar(&showResolved, "resolved", false, "Print the effective configuration after layering files, environment and defaults")
}

var showResolved bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage chatsync configuration",
	Long:  "View or modify the chatsync configuration stored in ~/.chatsync/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showResolved {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return writeResolvedConfig(cmd.OutOrStdout(), *cfg, configSources())
		}

		path, err := configPath()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "No configuration file found. Run 'chatsync config set server.base_url <url>' to create one.")
				return nil
			}
			return fmt.Errorf("cannot read config file: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: chatsync config set server.base_url https://chat.example.com",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		path, err := configPath()
		if err != nil {
			return err
		}
		var cfg Config
		if err := readConfigFile(path, &cfg); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(&cfg, key, value); err != nil {
			return err
		}

		if err := saveConfig(&cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the effective configuration can reach a server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration OK")
		fmt.Fprintf(out, "  Server:  %s\n", cfg.Server.BaseURL)
		fmt.Fprintf(out, "  Socket:  %s\n", cfg.Server.SocketPath)
		fmt.Fprintf(out, "  Token:   %s\n", valueOrDefault(maskedToken(cfg.Auth.Token), "(not set)"))
		fmt.Fprintf(out, "  Sources: %s\n", valueOrDefault(strings.Join(configSources(), ", "), "(defaults only)"))
		return nil
	},
}

// configSources lists where the effective configuration came from, in the
// order loadConfig applies them.
func configSources() []string {
	var sources []string
	if dir, err := configDir(); err == nil {
		if path := filepath.Join(dir, "config.toml"); fileExists(path) {
			sources = append(sources, path)
		}
	}
	if configFlag != "" && fileExists(configFlag) {
		sources = append(sources, configFlag)
	}
	for _, name := range []string{"CHATSYNC_BASE_URL", "CHATSYNC_TOKEN"} {
		if os.Getenv(name) != "" {
			sources = append(sources, "$"+name)
		}
	}
	return sources
}

// writeResolvedConfig prints cfg as TOML with the token masked.
func writeResolvedConfig(w io.Writer, cfg Config, sources []string) error {
	cfg.Auth.Token = maskedToken(cfg.Auth.Token)
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	for _, src := range sources {
		fmt.Fprintf(w, "# from %s\n", src)
	}
	_, err = w.Write(data)
	return err
}

func maskedToken(token string) string {
	if token == "" {
		return ""
	}
	return maskToken(token)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

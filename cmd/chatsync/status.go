package main

import (
	"context"
	"fmt"
	"time"

	"github.com/liventcord/chatsync"
	"github.com/spf13/cobra"
)

var statusTimeout time.Duration

func init() {
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 15*time.Second, "Give up on the live check after this long")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	Long:  "Display the current configuration and, when a server is configured, fetch the live guild and friend summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Configuration:")
		fmt.Fprintf(out, "  Base URL:    %s\n", valueOrDefault(cfg.Server.BaseURL, "(not set)"))
		fmt.Fprintf(out, "  Socket path: %s\n", cfg.Server.SocketPath)
		if cfg.Auth.Token != "" {
			fmt.Fprintf(out, "  Token:       %s\n", maskToken(cfg.Auth.Token))
		} else {
			fmt.Fprintln(out, "  Token:       (not set)")
		}
		fmt.Fprintf(out, "  User ID:     %s\n", valueOrDefault(cfg.Auth.UserID, "(not set)"))

		if cfg.Server.BaseURL == "" {
			return nil
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Live status:")
		s, err := newSession(chatsync.NopRenderer{})
		if err != nil {
			fmt.Fprintf(out, "  Error: %v\n", err)
			return nil
		}
		if err := s.bootstrap(context.Background(), statusTimeout); err != nil {
			if chatsync.IsUnauthorized(err) {
				fmt.Fprintln(out, "  Token rejected by the server")
				return nil
			}
			fmt.Fprintf(out, "  Error fetching init data: %v\n", err)
			return nil
		}

		cache := s.sync.Cache()
		sess := s.sync.Session()
		fmt.Fprintf(out, "  User:    %s (%s)\n", valueOrDefault(sess.Nickname(), "?"), sess.UserID())
		fmt.Fprintf(out, "  Friends: %d\n", len(cache.Friends()))
		guilds := cache.Guilds()
		fmt.Fprintf(out, "  Guilds:  %d\n", len(guilds))
		for _, g := range guilds {
			fmt.Fprintf(out, "    %-24s %s  (%d channels, %d members)\n",
				g.ID, g.Name, len(cache.Channels(g.ID)), len(cache.Members(g.ID)))
		}
		return nil
	},
}

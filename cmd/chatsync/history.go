package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/liventcord/chatsync"
	"github.com/spf13/cobra"
)

var (
	historyDM      bool
	historyPages   int
	historyJSON    bool
	historyGoTo    string
	historyTimeout time.Duration
)

func init() {
	historyCmd.Flags().BoolVar(&historyDM, "dm", false, "Read a direct message channel; <guild-id> is the friend id")
	historyCmd.Flags().IntVarP(&historyPages, "pages", "p", 0, "Additional older pages to load")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output cached messages as JSON")
	historyCmd.Flags().StringVar(&historyGoTo, "goto", "", "Load history up to this message id and focus it")
	historyCmd.Flags().DurationVar(&historyTimeout, "timeout", 30*time.Second, "Overall timeout")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <guild-id> <channel-id>",
	Short: "Print the message history of a channel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		var s *session
		out := cmd.OutOrStdout()
		renderer := chatsync.Renderer(newTermRenderer(out, lazyNicks(&s)))
		if historyJSON {
			renderer = chatsync.NopRenderer{}
		}
		s, err := newSession(renderer)
		if err != nil {
			return err
		}
		if err := s.bootstrap(ctx, historyTimeout); err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}

		view := chatsync.View{GuildID: args[0], ChannelID: args[1]}
		if historyDM {
			view = chatsync.View{FriendID: args[0], ChannelID: args[1], IsDM: true}
		}
		if err := s.sync.Select(ctx, view); err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		for i := 0; i < historyPages && !s.sync.AtStart(view); i++ {
			if err := s.sync.LoadOlder(ctx); err != nil {
				return fmt.Errorf("failed to load older messages: %w", err)
			}
		}
		if historyGoTo != "" {
			if err := s.sync.GoToMessage(ctx, historyGoTo); err != nil {
				return err
			}
		}

		guildID := view.GuildID
		if view.IsDM {
			guildID = chatsync.DMGuildID
		}
		msgs := s.sync.Cache().Messages(guildID, view.ChannelID)
		if historyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		}
		if len(msgs) == 0 {
			fmt.Fprintln(os.Stderr, "No messages found.")
		}
		return nil
	},
}

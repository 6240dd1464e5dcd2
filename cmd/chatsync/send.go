package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/liventcord/chatsync"
	"github.com/spf13/cobra"
)

var (
	sendDM      bool
	sendReplyTo string
	sendJSON    bool
	sendTimeout time.Duration
)

func init() {
	sendCmd.Flags().BoolVar(&sendDM, "dm", false, "Send to a direct message channel; <guild-id> is the friend id")
	sendCmd.Flags().StringVar(&sendReplyTo, "reply-to", "", "Message id to reply to")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Output the confirmed message as JSON")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "Overall timeout")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <guild-id> <channel-id> <text...>",
	Short: "Send a message to a channel",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		s, err := newSession(chatsync.NopRenderer{})
		if err != nil {
			return err
		}
		if err := s.bootstrap(ctx, sendTimeout); err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}

		view := chatsync.View{GuildID: args[0], ChannelID: args[1]}
		if sendDM {
			view = chatsync.View{FriendID: args[0], ChannelID: args[1], IsDM: true}
		}
		// Only the selection is needed; history is not loaded.
		s.sync.Session().Select(view)

		msg, err := s.sync.SendMessage(ctx, strings.Join(args[2:], " "), sendReplyTo)
		if err != nil {
			return fmt.Errorf("send failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if sendJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(msg)
		}
		if msg.ID == msg.TemporaryID {
			fmt.Fprintf(out, "Sent (awaiting confirmation, temporary id %s)\n", msg.TemporaryID)
			return nil
		}
		fmt.Fprintf(out, "Sent message %s\n", msg.ID)
		return nil
	},
}

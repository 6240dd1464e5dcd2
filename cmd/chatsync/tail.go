package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/liventcord/chatsync"
	"github.com/spf13/cobra"
)

var (
	tailDM          bool
	tailInteractive bool
)

func init() {
	tailCmd.Flags().BoolVar(&tailDM, "dm", false, "Follow a direct message channel; <guild-id> is the friend id")
	tailCmd.Flags().BoolVarP(&tailInteractive, "interactive", "i", false, "Send each line read from stdin to the channel")
	rootCmd.AddCommand(tailCmd)
}

var tailCmd = &cobra.Command{
	Use:   "tail <guild-id> <channel-id>",
	Short: "Follow a channel live",
	Long:  "Print the latest history of a channel and follow new messages over the realtime connection until interrupted.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var s *session
		out := cmd.OutOrStdout()
		nicks := lazyNicks(&s)
		s, err := newSession(newTermRenderer(out, nicks), chatsync.WithNotifier(bellNotifier{w: os.Stderr, nicks: nicks}))
		if err != nil {
			return err
		}

		if err := s.sync.Bootstrap(ctx); err != nil {
			return err
		}
		s.sync.Register(ctx, s.client.Bus())

		rt := s.realtime()
		rt.OnStateChange(func(state chatsync.ConnState) {
			if state == chatsync.StateReconnecting {
				fmt.Fprintln(os.Stderr, "! connection lost, reconnecting")
			}
		})
		rt.OnReconnected(func() {
			go func() {
				if err := s.sync.Bootstrap(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Warn("re-bootstrap failed", "error", err)
					return
				}
				if err := s.sync.Select(ctx, s.sync.Session().Current()); err != nil {
					s.logger.Warn("reload after reconnect failed", "error", err)
				}
			}()
		})

		view := chatsync.View{GuildID: args[0], ChannelID: args[1]}
		if tailDM {
			view = chatsync.View{FriendID: args[0], ChannelID: args[1], IsDM: true}
		}
		if err := s.sync.Select(ctx, view); err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		if err := rt.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer rt.Disconnect()

		go checkPending(ctx, s)
		if tailInteractive {
			go readLines(ctx, s)
		}

		<-ctx.Done()
		return nil
	},
}

// checkPending marks stale sends failed until ctx ends.
func checkPending(ctx context.Context, s *session) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sync.CheckPending(now)
		}
	}
}

// readLines sends stdin lines. "/retry <id>" re-sends a failed message and
// "/older" loads the previous page.
func readLines(ctx context.Context, s *session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case line == "":
			continue
		case line == "/older":
			err = s.sync.LoadOlder(ctx)
		case strings.HasPrefix(line, "/retry "):
			_, err = s.sync.RetrySend(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/retry ")))
		default:
			_, err = s.sync.SendMessage(ctx, line, "")
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "! %v\n", err)
		}
	}
}

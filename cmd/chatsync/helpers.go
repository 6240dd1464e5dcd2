package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/liventcord/chatsync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// session bundles everything a network command needs.
type session struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *chatsync.Metrics
	client  *chatsync.Client
	sync    *chatsync.Synchronizer
}

// newSession loads the config and wires a client and synchronizer drawing
// into renderer.
func newSession(renderer chatsync.Renderer, opts ...chatsync.SyncOption) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := chatsync.NewMetrics(reg)

	addr := cfg.Metrics.Addr
	if metricsFlag != "" {
		addr = metricsFlag
	}
	if addr != "" {
		serveMetrics(addr, reg, logger)
	}

	client := chatsync.NewClient(cfg.Server.BaseURL,
		chatsync.WithToken(cfg.Auth.Token),
		chatsync.WithTimeout(cfg.Server.Timeout.Std()),
		chatsync.WithRetryDelay(cfg.Sync.RetryDelay.Std()),
		chatsync.WithBootstrapInterval(cfg.Sync.BootstrapInterval.Std()),
		chatsync.WithLogger(logger),
		chatsync.WithMetrics(metrics),
		chatsync.WithAlert(func(event chatsync.EventName, err error) {
			fmt.Fprintf(os.Stderr, "! %s failed: %v\n", event, err)
		}),
	)

	opts = append([]chatsync.SyncOption{
		chatsync.WithSession(chatsync.NewSession(cfg.Auth.UserID)),
		chatsync.WithSyncLogger(logger),
		chatsync.WithSyncMetrics(metrics),
		chatsync.WithPendingTimeout(cfg.Sync.PendingTimeout.Std()),
		chatsync.WithReplyOptions(chatsync.WithMaxReplyAttempts(cfg.Sync.MaxReplyAttempts)),
	}, opts...)

	return &session{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		client:  client,
		sync:    chatsync.NewSynchronizer(client, chatsync.NewCache(), renderer, opts...),
	}, nil
}

// realtime creates the push connection for the session.
func (s *session) realtime() *chatsync.Realtime {
	return chatsync.NewRealtime(s.client.BaseURL(), s.client.Bus(), &chatsync.RealtimeConfig{
		Token:             s.cfg.Auth.Token,
		Path:              s.cfg.Server.SocketPath,
		ReconnectMaxDelay: s.cfg.Sync.ReconnectMaxDelay.Std(),
	}, chatsync.WithRealtimeLogger(s.logger), chatsync.WithRealtimeMetrics(s.metrics))
}

// bootstrap loads the initial state, giving up after timeout.
func (s *session) bootstrap(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.sync.Bootstrap(ctx)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
}

// maskToken shows the first and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

// nick resolves a display name from the cache.
func (s *session) nick(userID string) string {
	sess := s.sync.Session()
	if userID == sess.UserID() && sess.Nickname() != "" {
		return sess.Nickname()
	}
	v := sess.Current()
	guildID := v.GuildID
	if v.IsDM {
		guildID = chatsync.DMGuildID
	}
	for _, m := range s.sync.Cache().Members(guildID) {
		if m.UserID == userID && m.Nickname != "" {
			return m.Nickname
		}
	}
	if f, ok := s.sync.Cache().Friend(userID); ok && f.Nickname != "" {
		return f.Nickname
	}
	return userID
}

// lazyNicks defers name lookups until the session exists.
func lazyNicks(s **session) func(string) string {
	return func(id string) string {
		if *s == nil {
			return id
		}
		return (*s).nick(id)
	}
}

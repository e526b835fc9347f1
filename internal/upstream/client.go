// Package upstream wraps github.com/gotd/td (the MTProto user-account
// client; the teacher's own Telegram integration only ever spoke the Bot
// API, so this package's shape is grounded instead on the gotd/td usage
// patterns in _examples/other_examples/, principally ernado's canonical
// example and KurtSkinny's userbot) with the flood-wait and rate-limit
// middleware from github.com/gotd/contrib, and exposes the single
// long-lived Client the realtime dispatcher and the discovery/outbox
// loops all share.
package upstream

import (
	"context"
	"fmt"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/config"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
)

// Client is the long-lived MTProto connection plus the middleware the
// worker leans on for upstream resilience.
type Client struct {
	TG     *telegram.Client
	waiter *floodwait.Waiter
	Pacer  *Pacer
	log    *logger.Logger
}

// NewClient constructs the gotd/td client against the session file the
// Session Manager has already made available at cfg.SessionPath. It does
// not dial; call Run to connect.
func NewClient(cfg *config.Config, dispatcher tg.UpdateDispatcher, log *logger.Logger) (*Client, error) {
	zapLog, err := buildZapLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("build upstream logger: %w", err)
	}

	waiter := floodwait.NewWaiter().WithCallback(func(ctx context.Context, wait *tg.RPCError) {
		log.Warn("upstream flood wait, backing off", "rpc_error", wait.Message)
	})

	limiter := ratelimit.New(rate.Every(cfg.UpstreamCallDelayMin), 1)

	tgClient := telegram.NewClient(cfg.TelegramAPIID, cfg.TelegramAPIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{Path: cfg.SessionPath},
		UpdateHandler:  dispatcher,
		Logger:         zapLog,
		Middlewares: []telegram.Middleware{
			waiter,
			limiter,
		},
	})

	return &Client{
		TG:     tgClient,
		waiter: waiter,
		Pacer:  NewPacer(cfg.UpstreamCallDelayMin, cfg.UpstreamCallDelayMax),
		log:    log.WithComponent("upstream_client"),
	}, nil
}

// Run connects and blocks until ctx is cancelled or the connection dies,
// invoking fn once authenticated. Mirrors the gotd/td examples' run-then-
// use-API idiom; callers pass a closure that starts dispatch loops and
// waits on ctx.Done().
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.waiter.Run(ctx, func(ctx context.Context) error {
		return c.TG.Run(ctx, fn)
	})
}

// API returns the raw MTProto API surface for building requests (dialog
// listing, history fetch, send-message, read-history acks).
func (c *Client) API() *tg.Client {
	return c.TG.API()
}

// buildZapLogger mirrors the teacher's environment-gated handler choice
// (internal/logger): outside production gotd/td's own logs are discarded
// (zap.NewNop); in production they are written as zap's JSON. gotd/td's Options.Logger wants a *zap.Logger, not the
// project's slog wrapper, so this is the one place that type is built.
func buildZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.AppEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewNop(), nil
}

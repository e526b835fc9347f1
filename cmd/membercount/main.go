// Command membercount refreshes member_count for every group and
// supergroup/channel conversation. The Go counterpart to the original
// sync_member_counts.py: run it by hand, it is never started by the
// worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gotd/td/tg"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/config"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/ingest"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/upstream"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	db, err := pg.InitDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := upstream.NewClient(cfg, tg.NewUpdateDispatcher(), log)
	if err != nil {
		log.Error("build upstream client failed", "error", err)
		os.Exit(1)
	}

	err = client.Run(ctx, func(ctx context.Context) error {
		conversations, err := db.AllConversations(ctx, ingest.Source)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}

		dialogs, err := client.ListDialogs(ctx, 500)
		if err != nil {
			return fmt.Errorf("list dialogs: %w", err)
		}
		peers := make(map[string]tg.InputPeerClass, len(dialogs))
		for _, d := range dialogs {
			peers[d.ExternalChatID] = d.InputPeer
		}

		var updated, skipped, failed int
		for _, conv := range conversations {
			if conv.Kind != model.ConversationGroup && conv.Kind != model.ConversationSupergroup && conv.Kind != model.ConversationChannel {
				continue
			}
			peer, ok := peers[conv.ExternalChatID]
			if !ok {
				skipped++
				continue
			}

			count, err := client.FetchMemberCount(ctx, peer)
			if err != nil {
				log.LogError(ctx, err, "fetch member count failed", "external_chat_id", conv.ExternalChatID)
				failed++
			} else if err := db.SetMemberCount(ctx, conv.ID, count); err != nil {
				log.LogError(ctx, err, "set member count failed", "external_chat_id", conv.ExternalChatID)
				failed++
			} else {
				updated++
			}

			if err := client.Pacer.Wait(ctx); err != nil {
				return err
			}
		}

		log.Info("member count sync complete", "updated", updated, "skipped", skipped, "failed", failed)
		return nil
	})
	if err != nil {
		log.Error("membercount failed", "error", err)
		os.Exit(1)
	}
}

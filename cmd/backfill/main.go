// Command backfill re-fetches sender metadata for group/channel messages
// that were inserted before a sender descriptor was attached (or whose
// descriptor never resolved at ingest time). The Go counterpart to the
// original backfill_sender_metadata.py; run by hand, never started by
// the worker.
package main

import (
	"context"
	"flag"
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

const historyWindow = 1000

func main() {
	conversationID := flag.String("conversation-id", "", "only backfill this conversation")
	dryRun := flag.Bool("dry-run", false, "preview without writing")
	flag.Parse()

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
		conversations, err := conversationsToProcess(ctx, db, *conversationID)
		if err != nil {
			return err
		}

		dialogs, err := client.ListDialogs(ctx, 500)
		if err != nil {
			return fmt.Errorf("list dialogs: %w", err)
		}
		peers := make(map[string]tg.InputPeerClass, len(dialogs))
		for _, d := range dialogs {
			peers[d.ExternalChatID] = d.InputPeer
		}

		var totalUpdated int
		for _, conv := range conversations {
			updated, err := backfillConversation(ctx, db, client, peers, conv, *dryRun)
			if err != nil {
				log.LogError(ctx, err, "backfill conversation failed", "conversation_id", conv.ID)
				continue
			}
			totalUpdated += updated
			log.Info("conversation backfilled", "conversation_id", conv.ID, "updated", updated)
		}

		log.Info("backfill complete", "total_updated", totalUpdated, "dry_run", *dryRun)
		return nil
	})
	if err != nil {
		log.Error("backfill failed", "error", err)
		os.Exit(1)
	}
}

func conversationsToProcess(ctx context.Context, db *pg.Database, conversationID string) ([]*model.Conversation, error) {
	if conversationID != "" {
		conv, err := db.GetConversationByID(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("get conversation: %w", err)
		}
		return []*model.Conversation{conv}, nil
	}

	all, err := db.AllConversations(ctx, ingest.Source)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var groups []*model.Conversation
	for _, c := range all {
		if c.Kind != model.ConversationPrivate {
			groups = append(groups, c)
		}
	}
	return groups, nil
}

func backfillConversation(ctx context.Context, db *pg.Database, client *upstream.Client, peers map[string]tg.InputPeerClass, conv *model.Conversation, dryRun bool) (int, error) {
	missing, err := db.MessagesMissingSenderMetadata(ctx, conv.ID)
	if err != nil {
		return 0, fmt.Errorf("messages missing sender metadata: %w", err)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	peer, ok := peers[conv.ExternalChatID]
	if !ok {
		return 0, fmt.Errorf("no visible dialog for chat %s", conv.ExternalChatID)
	}

	descriptors, err := client.FetchHistory(ctx, peer, 0, historyWindow)
	if err != nil {
		return 0, fmt.Errorf("fetch history: %w", err)
	}
	bySenderKey := make(map[string]model.SenderDescriptor, len(descriptors))
	for _, d := range descriptors {
		if d.Sender.ExternalID != "" {
			bySenderKey[d.ExternalMessageID] = d.Sender
		}
	}

	var updated int
	for _, msg := range missing {
		sender, ok := bySenderKey[msg.ExternalMessageID]
		if !ok {
			continue
		}
		if dryRun {
			updated++
			continue
		}
		if err := db.BackfillSenderMetadata(ctx, msg.ID, sender); err != nil {
			return updated, fmt.Errorf("backfill message %s: %w", msg.ID, err)
		}
		updated++
	}
	return updated, nil
}

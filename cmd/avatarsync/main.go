// Command avatarsync downloads the current profile photo for every
// known contact and group conversation and writes it under
// ATTACHMENT_STORE_DIR/avatars, recording the on-disk path for contacts.
// It is the Go counterpart to the original download_avatars.py: run it
// by hand whenever avatars need refreshing, it is never started by the
// worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
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

	contactsDir := filepath.Join(cfg.AttachmentStoreDir, "avatars", "contacts")
	groupsDir := filepath.Join(cfg.AttachmentStoreDir, "avatars", "groups")
	if err := os.MkdirAll(contactsDir, 0o755); err != nil {
		log.Error("create contacts avatar dir failed", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(groupsDir, 0o755); err != nil {
		log.Error("create groups avatar dir failed", "error", err)
		os.Exit(1)
	}

	err = client.Run(ctx, func(ctx context.Context) error {
		dialogs, err := client.ListDialogs(ctx, 500)
		if err != nil {
			return fmt.Errorf("list dialogs: %w", err)
		}

		var synced, skipped, failed int
		for _, d := range dialogs {
			photo, err := client.FetchPeerPhoto(ctx, d.InputPeer)
			if err != nil {
				skipped++
			} else if d.Kind == model.ConversationPrivate {
				contactID, err := db.ResolveContactIDByIdentity(ctx, ingest.Source, d.ExternalChatID)
				if err != nil {
					log.LogError(ctx, err, "no contact for private dialog", "external_chat_id", d.ExternalChatID)
					failed++
				} else if err := writeAndRecord(ctx, db, contactsDir, contactID, photo); err != nil {
					log.LogError(ctx, err, "write contact avatar failed", "contact_id", contactID)
					failed++
				} else {
					synced++
				}
			} else {
				path := filepath.Join(groupsDir, d.ExternalChatID+".jpg")
				if err := os.WriteFile(path, photo, 0o644); err != nil {
					log.LogError(ctx, err, "write group avatar failed", "external_chat_id", d.ExternalChatID)
					failed++
				} else {
					synced++
				}
			}

			if err := client.Pacer.Wait(ctx); err != nil {
				return err
			}
		}

		log.Info("avatar sync complete", "synced", synced, "skipped", skipped, "failed", failed)
		return nil
	})
	if err != nil {
		log.Error("avatarsync failed", "error", err)
		os.Exit(1)
	}
}

func writeAndRecord(ctx context.Context, db *pg.Database, dir, contactID string, photo []byte) error {
	path := filepath.Join(dir, contactID+".jpg")
	if err := os.WriteFile(path, photo, 0o644); err != nil {
		return err
	}
	return db.SetAvatarPath(ctx, contactID, path)
}

// Command wipe deletes every row this worker ever wrote (messages,
// conversations, source identities, and any contact left with no other
// source's identity), so a fresh dialog-discovery pass can rebuild sync
// state from scratch. The Go counterpart to the original
// clean_telegram_data.py. Asks for interactive confirmation unless --yes
// is given; run by hand, never started by the worker.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/config"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/ingest"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
)

func main() {
	yes := flag.Bool("yes", false, "skip the interactive confirmation prompt")
	flag.Parse()

	config.LoadConfig()
	cfg := config.AppConfig
	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	if !*yes && !confirm() {
		fmt.Println("Cancelled.")
		return
	}

	db, err := pg.InitDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	counts, err := db.DeleteAllSourceData(ctx, ingest.Source)
	if err != nil {
		log.Error("wipe failed", "error", err)
		os.Exit(1)
	}

	log.Info("wipe complete",
		"messages_deleted", counts.Messages,
		"conversations_deleted", counts.Conversations,
		"source_identities_deleted", counts.SourceIdentities,
		"contacts_deleted", counts.Contacts,
	)
}

func confirm() bool {
	fmt.Println("This will delete ALL telegram-sourced data from the database.")
	fmt.Print("Are you sure you want to continue? (yes/no): ")
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(answer)) == "yes"
}

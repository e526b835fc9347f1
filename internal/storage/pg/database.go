package pg

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/config"
)

// Database wraps the raw connection pool. Unlike the teacher, this package
// cannot depend on sqlc-generated Queries (no generator is available in
// this environment, see DESIGN.md); instead every entity gets a small
// hand-written query file in this package (conversations.go, messages.go,
// contacts.go, locks.go, listener_state.go, outbox.go, sessions.go) that
// takes *Database and exposes the operations §3/§4 describe.
type Database struct {
	DB *sql.DB
}

// InitDatabase opens the pool, tunes it from config, pings, and runs
// migrations before handing back a ready Database.
func InitDatabase(databaseURL string) (*Database, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.AppConfig.DBMaxOpenConns)
	db.SetMaxIdleConns(config.AppConfig.DBMaxIdleConns)
	db.SetConnMaxIdleTime(time.Duration(config.AppConfig.DBConnMaxIdleTime) * time.Minute)
	db.SetConnMaxLifetime(time.Duration(config.AppConfig.DBConnMaxLifetime) * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close releases the underlying pool.
func (d *Database) Close() error {
	return d.DB.Close()
}

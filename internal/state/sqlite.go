package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"annobot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS subscribers (
	pos       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT    NOT NULL UNIQUE,
	notify    INTEGER NOT NULL DEFAULT 0,
	thread_id TEXT    NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS watermark (
	k      INTEGER PRIMARY KEY CHECK (k = 1),
	record TEXT    NOT NULL
);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	prefix := strings.TrimSpace(cfg.Path)
	if prefix == "" {
		return nil, errors.New("state.path is required for sqlite driver")
	}
	path := prefix + ".db"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, notify, thread_id FROM subscribers ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		var sub Subscriber
		var notify int
		if err := rows.Scan(&sub.ID, &notify, &sub.ThreadID); err != nil {
			return nil, err
		}
		sub.Notify = notify != 0
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SaveSubscribers replaces the whole registry in one transaction, keeping
// full-document-replace semantics aligned with the file driver.
func (s *sqliteStore) SaveSubscribers(ctx context.Context, subs []Subscriber) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscribers`); err != nil {
		return fmt.Errorf("save subscribers: %w", err)
	}
	for _, sub := range subs {
		notify := 0
		if sub.Notify {
			notify = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subscribers(id, notify, thread_id) VALUES(?,?,?)`,
			sub.ID, notify, sub.ThreadID,
		); err != nil {
			return fmt.Errorf("save subscribers: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadWatermark(ctx context.Context) (Watermark, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM watermark WHERE k = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Watermark{}, nil
	}
	if err != nil {
		return Watermark{}, fmt.Errorf("load watermark: %w", err)
	}
	var wm Watermark
	if err := json.Unmarshal([]byte(raw), &wm); err != nil {
		return Watermark{}, fmt.Errorf("load watermark: %w", err)
	}
	return wm, nil
}

func (s *sqliteStore) SaveWatermark(ctx context.Context, wm Watermark) error {
	b, err := json.Marshal(wm)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO watermark(k, record) VALUES(1, ?)
		 ON CONFLICT(k) DO UPDATE SET record=excluded.record`,
		string(b),
	)
	if err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}

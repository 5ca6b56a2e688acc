// Package inbox is a SQLite-backed command queue. "feedsweep ctl" appends
// commands from another process; the running engine drains them in order
// when the watcher sees the queue grow.
package inbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/feedsweep/dbopen"
	"github.com/hazyhaar/feedsweep/idgen"
	"github.com/hazyhaar/feedsweep/sweeper/message"
	"github.com/hazyhaar/feedsweep/watch"
)

// Schema for the command queue. Rows are marked consumed, never deleted,
// so MAX(seq) only grows.
const Schema = `
CREATE TABLE IF NOT EXISTS command_inbox (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	body        TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	consumed_at INTEGER
);
`

// DefaultInterval is the polling interval of Run.
const DefaultInterval = 250 * time.Millisecond

// Handler applies one command.
type Handler func(ctx context.Context, c message.Command) error

// Inbox wraps the queue table.
type Inbox struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// New wraps db. The schema must already exist.
func New(db *sql.DB, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{db: db, newID: idgen.Prefixed("cmd_", idgen.Default), logger: logger}
}

// Open opens (or creates) the queue at path.
func Open(path string, logger *slog.Logger) (*Inbox, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("inbox: %w", err)
	}
	return New(db, logger), nil
}

func (in *Inbox) Close() error { return in.db.Close() }

// Enqueue appends c and returns its ID.
func (in *Inbox) Enqueue(ctx context.Context, c message.Command) (string, error) {
	body, err := message.Encode(c)
	if err != nil {
		return "", fmt.Errorf("inbox: encode: %w", err)
	}
	id := in.newID()
	if _, err := dbopen.Exec(ctx, in.db,
		`INSERT INTO command_inbox (id, body, created_at) VALUES (?, ?, ?)`,
		id, string(body), time.Now().UnixMilli()); err != nil {
		return "", fmt.Errorf("inbox: enqueue: %w", err)
	}
	return id, nil
}

type row struct {
	seq  int64
	id   string
	body string
}

// Drain claims every pending command in sequence order and hands each to h.
// Claimed rows are consumed even when decoding or h fails: a command is
// applied at most once. It returns how many commands h accepted.
func (in *Inbox) Drain(ctx context.Context, h Handler) (int, error) {
	var rows []row
	err := dbopen.RunTx(ctx, in.db, func(tx *sql.Tx) error {
		rows = rows[:0]
		rs, err := tx.QueryContext(ctx,
			`SELECT seq, id, body FROM command_inbox WHERE consumed_at IS NULL ORDER BY seq`)
		if err != nil {
			return err
		}
		for rs.Next() {
			var r row
			if err := rs.Scan(&r.seq, &r.id, &r.body); err != nil {
				rs.Close()
				return err
			}
			rows = append(rows, r)
		}
		rs.Close()
		if err := rs.Err(); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE command_inbox SET consumed_at = ? WHERE consumed_at IS NULL AND seq <= ?`,
			time.Now().UnixMilli(), rows[len(rows)-1].seq)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("inbox: drain: %w", err)
	}

	applied := 0
	for _, r := range rows {
		c, err := message.Decode([]byte(r.body))
		if err != nil {
			in.logger.Warn("inbox: undecodable command", "id", r.id, "error", err)
			continue
		}
		if err := h(ctx, c); err != nil {
			in.logger.Warn("inbox: command failed", "id", r.id, "type", c.Type(), "error", err)
			continue
		}
		applied++
	}
	return applied, nil
}

// Pending counts unconsumed commands.
func (in *Inbox) Pending(ctx context.Context) (int, error) {
	var n int
	err := in.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM command_inbox WHERE consumed_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("inbox: pending: %w", err)
	}
	return n, nil
}

// Run drains what queued up while the engine was down, then drains again
// on every growth of the queue until ctx is done.
func (in *Inbox) Run(ctx context.Context, h Handler, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if n, err := in.Drain(ctx, h); err != nil {
		in.logger.Warn("inbox: initial drain", "error", err)
	} else if n > 0 {
		in.logger.Info("inbox: applied queued commands", "count", n)
	}

	w := watch.New(in.db, watch.Options{
		Interval: interval,
		Detector: watch.MaxColumnDetector("command_inbox", "seq"),
		Logger:   in.logger,
	})
	w.OnChange(ctx, func() error {
		_, err := in.Drain(ctx, h)
		return err
	})
}

// Package journal keeps a durable record of every command the engine
// applied: which surface sent it, the request id, its parameters, whether
// it was accepted and how long it took. Writes are buffered and flushed in
// batches so Dispatch never waits on the disk.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/feedsweep/dbopen"
	"github.com/hazyhaar/feedsweep/idgen"
	"github.com/hazyhaar/feedsweep/kit"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

const Schema = `
CREATE TABLE IF NOT EXISTS command_journal (
	entry_id    TEXT PRIMARY KEY,
	ts          INTEGER NOT NULL,
	transport   TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT '',
	command     TEXT NOT NULL,
	params      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_us INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_command_journal_ts ON command_journal(ts);
`

// Entry statuses.
const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
)

const (
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// Entry is one applied or rejected command.
type Entry struct {
	ID        string        `json:"id"`
	Time      time.Time     `json:"time"`
	Transport string        `json:"transport,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Command   string        `json:"command"`
	Params    string        `json:"params,omitempty"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Filter narrows Recent. Zero values match everything.
type Filter struct {
	Transport string
	Status    string
	Since     time.Time
	Limit     int // default 50
}

// Journal persists entries asynchronously.
type Journal struct {
	db     *sql.DB
	owned  bool
	newID  idgen.Generator
	logger *slog.Logger

	ch   chan *Entry
	stop chan struct{}
	done chan struct{}
}

// New wraps db, whose schema must already exist, and starts the flusher.
func New(db *sql.DB, bufferSize int, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	j := &Journal{
		db:     db,
		newID:  idgen.Prefixed("jrn_", idgen.Default),
		logger: logger,
		ch:     make(chan *Entry, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go j.flushLoop()
	return j
}

// Open opens (or creates) the journal table in the database at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	j := New(db, 0, logger)
	j.owned = true
	return j, nil
}

// Command records c with the outcome of applying it. Transport and
// request id come from ctx.
func (j *Journal) Command(ctx context.Context, c message.Command, err error, took time.Duration) {
	e := &Entry{
		Transport: kit.GetTransport(ctx),
		RequestID: kit.GetRequestID(ctx),
		Command:   string(c.Type()),
		Duration:  took,
	}
	if body, encErr := message.Encode(c); encErr == nil {
		e.Params = string(body)
	}
	if err != nil {
		e.Error = err.Error()
	}
	j.Record(e)
}

// Record queues e. A full buffer falls back to a synchronous insert.
func (j *Journal) Record(e *Entry) {
	j.fill(e)
	select {
	case j.ch <- e:
	default:
		j.logger.Warn("journal: buffer full, writing inline", "command", e.Command)
		if err := j.insert(context.Background(), j.db, e); err != nil {
			j.logger.Error("journal: inline write", "error", err)
		}
	}
}

// Log writes e synchronously.
func (j *Journal) Log(ctx context.Context, e *Entry) error {
	j.fill(e)
	if err := j.insert(ctx, j.db, e); err != nil {
		return fmt.Errorf("journal: log: %w", err)
	}
	return nil
}

// Recent returns the newest entries matching f, newest first.
func (j *Journal) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	q := `SELECT entry_id, ts, transport, request_id, command, params, status, error, duration_us
		FROM command_journal WHERE 1=1`
	var args []any
	if f.Transport != "" {
		q += " AND transport = ?"
		args = append(args, f.Transport)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		q += " AND ts >= ?"
		args = append(args, f.Since.UnixMicro())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += " ORDER BY ts DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts, us int64
		if err := rows.Scan(&e.ID, &ts, &e.Transport, &e.RequestID, &e.Command,
			&e.Params, &e.Status, &e.Error, &us); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Time = time.UnixMicro(ts)
		e.Duration = time.Duration(us) * time.Microsecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retention and reports how many.
func (j *Journal) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMicro()
	res, err := dbopen.Exec(ctx, j.db, `DELETE FROM command_journal WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes pending entries. It closes the database only if Open
// created it.
func (j *Journal) Close() error {
	close(j.stop)
	<-j.done
	if j.owned {
		return j.db.Close()
	}
	return nil
}

func (j *Journal) fill(e *Entry) {
	if e.ID == "" {
		e.ID = j.newID()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Status == "" {
		if e.Error != "" {
			e.Status = StatusRejected
		} else {
			e.Status = StatusApplied
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (j *Journal) insert(ctx context.Context, db execer, e *Entry) error {
	_, err := db.ExecContext(ctx, `INSERT INTO command_journal
		(entry_id, ts, transport, request_id, command, params, status, error, duration_us)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UnixMicro(), e.Transport, e.RequestID, e.Command,
		e.Params, e.Status, e.Error, e.Duration.Microseconds())
	return err
}

func (j *Journal) flushLoop() {
	defer close(j.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	batch := make([]*Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := dbopen.RunTx(ctx, j.db, func(tx *sql.Tx) error {
			for _, e := range batch {
				if err := j.insert(ctx, tx, e); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			j.logger.Error("journal: flush", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-j.stop:
			for {
				select {
				case e := <-j.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-j.ch:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Package sqltrace registers a "sqlite-trace" database/sql driver that
// wraps modernc.org/sqlite and times every statement. Each statement is
// logged through slog (Debug, Warn past SlowThreshold, Error on failure)
// with the request id carried by the context, and observed in the
// feedsweep_sql_duration_seconds histogram.
//
//	import _ "github.com/hazyhaar/feedsweep/sqltrace"
//	db, _ := sql.Open(sqltrace.DriverName, "feedsweep.db")
package sqltrace

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	sqlite "modernc.org/sqlite"

	"github.com/hazyhaar/feedsweep/kit"
)

// DriverName is the name the tracing driver registers under.
const DriverName = "sqlite-trace"

// SlowThreshold raises a statement's log level to Warn.
var SlowThreshold = 100 * time.Millisecond

var durations = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "feedsweep_sql_duration_seconds",
	Help:    "SQLite statement latency.",
	Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
}, []string{"op", "outcome"})

func init() {
	sql.Register(DriverName, &Driver{Driver: &sqlite.Driver{}})
}

// Driver wraps another driver and traces its statements.
type Driver struct {
	driver.Driver
}

func (d *Driver) Open(name string) (driver.Conn, error) {
	c, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &conn{Conn: c}, nil
}

type conn struct {
	driver.Conn
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	s, err := c.Conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &stmt{Stmt: s, query: query}, nil
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	pc, ok := c.Conn.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	s, err := pc.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &stmt{Stmt: s, query: query}, nil
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.Conn.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	return c.Conn.Begin()
}

type stmt struct {
	driver.Stmt
	query string
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var (
		res driver.Result
		err error
	)
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		res, err = ec.ExecContext(ctx, args)
	} else {
		res, err = s.Stmt.Exec(values(args))
	}
	s.observe(ctx, "exec", time.Since(start), err)
	return res, err
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var (
		rows driver.Rows
		err  error
	)
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, args)
	} else {
		rows, err = s.Stmt.Query(values(args))
	}
	s.observe(ctx, "query", time.Since(start), err)
	return rows, err
}

func (s *stmt) observe(ctx context.Context, op string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	durations.WithLabelValues(op, outcome).Observe(d.Seconds())

	// The inbox poller reads PRAGMA data_version several times a second.
	if err == nil && d < SlowThreshold && strings.HasPrefix(s.query, "PRAGMA ") {
		return
	}

	level := slog.LevelDebug
	switch {
	case err != nil:
		level = slog.LevelError
	case d > SlowThreshold:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("query", s.query),
		slog.Duration("duration", d),
	}
	if id := kit.GetRequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	slog.LogAttrs(ctx, level, "sqltrace: statement", attrs...)
}

func values(named []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(named))
	for i, nv := range named {
		out[i] = nv.Value
	}
	return out
}

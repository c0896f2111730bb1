package sqlexec

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/srdiag/srdiag-mcp/internal/audit"
	"github.com/srdiag/srdiag-mcp/internal/central"
	"github.com/srdiag/srdiag-mcp/internal/metrics"
)

// Package sqlexec runs labelled SQL batches against the local StarRocks
// FE over the MySQL protocol. One connection per Execute call, closed on
// return; profile recording is always disabled on the session so the
// diagnostic queries do not pollute the profile list they inspect.

// Conn holds the database endpoint.
type Conn struct {
	Host     string
	Port     int
	User     string
	Password string
}

// DSN builds the driver connection string.
func (c Conn) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?parseTime=true&interpolateParams=true",
		c.User, c.Password, c.Host, c.Port)
}

// Addr returns host:port for diagnostics.
func (c Conn) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Runner executes SQL batches.
type Runner interface {
	// Execute runs each labelled statement sequentially. Per-statement
	// failures are recorded under the statement's id; the batch continues.
	Execute(ctx context.Context, queries []central.Query) map[string]interface{}

	// ExecuteSingle runs one statement and returns its rows or an error
	// structure.
	ExecuteSingle(ctx context.Context, sqlText string) interface{}
}

// Executor implements Runner against a live database.
type Executor struct {
	conn  Conn
	audit *audit.Logger
}

// New creates a SQL executor.
func New(conn Conn, auditLog *audit.Logger) *Executor {
	return &Executor{conn: conn, audit: auditLog}
}

// Execute opens one connection, disables profile recording, then runs
// each statement in order. Rows become results[id]; a failure becomes
// results[id] = {error, sql} and the batch continues.
func (e *Executor) Execute(ctx context.Context, queries []central.Query) map[string]interface{} {
	results := make(map[string]interface{}, len(queries))

	db, err := e.open(ctx)
	if err != nil {
		for _, q := range queries {
			if q.IsMeta() {
				continue
			}
			results[q.ID] = errorResult(err, q.SQL)
		}
		return results
	}
	defer db.Close()

	for _, q := range queries {
		if q.IsMeta() {
			continue
		}

		e.audit.Info(audit.EventDBQuery, "executing query", map[string]interface{}{
			"id":         q.ID,
			"sql":        q.SQL,
			"connection": e.conn.Addr(),
		})

		rows, err := queryRows(ctx, db, q.SQL)
		if err != nil {
			results[q.ID] = errorResult(err, q.SQL)
			metrics.SQLQueriesTotal.WithLabelValues("error").Inc()
			e.audit.Error(audit.EventDBResult, "query failed", map[string]interface{}{
				"id":    q.ID,
				"error": err.Error(),
			})
			continue
		}

		results[q.ID] = rows
		metrics.SQLQueriesTotal.WithLabelValues("success").Inc()
		e.audit.Info(audit.EventDBResult, "query completed", map[string]interface{}{
			"id":       q.ID,
			"rowCount": len(rows),
		})
	}

	return results
}

// ExecuteSingle runs one statement on a fresh connection.
func (e *Executor) ExecuteSingle(ctx context.Context, sqlText string) interface{} {
	db, err := e.open(ctx)
	if err != nil {
		return errorResult(err, sqlText)
	}
	defer db.Close()

	e.audit.Info(audit.EventDBQuery, "executing single statement", map[string]interface{}{
		"sql":        sqlText,
		"connection": e.conn.Addr(),
	})

	rows, err := queryRows(ctx, db, sqlText)
	if err != nil {
		metrics.SQLQueriesTotal.WithLabelValues("error").Inc()
		return errorResult(err, sqlText)
	}
	metrics.SQLQueriesTotal.WithLabelValues("success").Inc()
	return rows
}

// open dials the database and disables profile recording on the session.
func (e *Executor) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("mysql", e.conn.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening connection to %s: %w", e.conn.Addr(), err)
	}

	// Single session per batch; pooling would route the SET below and the
	// queries onto different connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "SET enable_profile = false"); err != nil {
		db.Close()
		return nil, fmt.Errorf("disabling profile recording: %w", err)
	}
	return db, nil
}

// queryRows runs one statement and folds the result set into generic
// row maps keyed by column name.
func queryRows(ctx context.Context, db *sql.DB, sqlText string) ([]map[string]interface{}, error) {
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, 16)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeValue makes driver values JSON-friendly. The MySQL driver
// returns most columns as []byte.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// SQLPrefixLen bounds the statement text echoed in error structures.
const SQLPrefixLen = 100

// errorResult is the failure shape stored under a statement's id.
func errorResult(err error, sqlText string) map[string]interface{} {
	return map[string]interface{}{
		"error": err.Error(),
		"sql":   Prefix(sqlText, SQLPrefixLen),
	}
}

// Prefix returns at most n leading bytes of s.
func Prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

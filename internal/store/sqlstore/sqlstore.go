// Package sqlstore implements the data-store port against Postgres via
// database/sql + lib/pq: raw SQL, sql.Tx, and a thin Store wrapper over
// a generic row/key contract — one logical table per label, each row
// keyed by a caller-owned string key and holding a JSON-encoded
// []string payload.
//
// Aggregate encodings (charge_buyer_toplvl, payout_meta, ...) are the
// repository layer's concern (internal/payment/repo, internal/order/repo),
// which encodes them into rows and stores them through this same generic
// key/row contract; no repository issues its own SQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/store"
)

type Store struct {
	DB *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseServerBusy, "open", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, apperr.Wrap(apperr.DatabaseServerBusy, "ping", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Migrate(dir string) error {
	driver, err := postgres.WithInstance(s.DB, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func (s *Store) CreateTable(ctx context.Context, label string) error {
	q := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (pkey VARCHAR(191) PRIMARY KEY, payload JSONB NOT NULL)`,
		pgIdent(label),
	)
	_, err := s.DB.ExecContext(ctx, q)
	return err
}

func pgIdent(label string) string { return `"` + label + `"` }

func encodeRow(r store.Row) ([]byte, error) { return json.Marshal(r) }

func decodeRow(b []byte) (store.Row, error) {
	var r store.Row
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// runQueryOnce executes a statement and fails with DataCorruption when the
// affected-row count diverges from what the caller expected.
func runQueryOnce(execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, ctx context.Context, q string, args []any, expected int64) error {
	res, err := execer.ExecContext(ctx, q, args...)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseServerBusy, "exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "rows affected unavailable", err)
	}
	if n != expected {
		return apperr.New(apperr.DataCorruption, fmt.Sprintf("expected %d rows affected, got %d: %s", expected, n, q))
	}
	return nil
}

func (s *Store) Save(ctx context.Context, updates map[string]map[string]store.Row) (int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.DatabaseServerBusy, "begin", err)
	}
	defer tx.Rollback()

	written := 0
	for label, rows := range updates {
		for k, v := range rows {
			b, err := encodeRow(v)
			if err != nil {
				return written, apperr.Wrap(apperr.InvalidInput, "encode row", err)
			}
			q := fmt.Sprintf(
				`INSERT INTO %s (pkey, payload) VALUES ($1,$2)
				 ON CONFLICT (pkey) DO UPDATE SET payload = EXCLUDED.payload`,
				pgIdent(label),
			)
			if _, err := tx.ExecContext(ctx, q, k, b); err != nil {
				return written, apperr.Wrap(apperr.DatabaseServerBusy, "upsert "+label, err)
			}
			written++
		}
	}
	if err := tx.Commit(); err != nil {
		return written, apperr.Wrap(apperr.DatabaseServerBusy, "commit", err)
	}
	return written, nil
}

func (s *Store) Fetch(ctx context.Context, label string, keys []string) (map[string]store.Row, error) {
	return fetchRows(ctx, s.DB, label, keys)
}

func fetchRows(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, label string, keys []string) (map[string]store.Row, error) {
	out := make(map[string]store.Row, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT pkey, payload FROM %s WHERE pkey = ANY($1)`, pgIdent(label))
	rows, err := q.QueryContext(ctx, query, pqStringArray(keys))
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseServerBusy, "select "+label, err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var raw []byte
		if err := rows.Scan(&k, &raw); err != nil {
			return nil, apperr.Wrap(apperr.DataCorruption, "scan "+label, err)
		}
		r, err := decodeRow(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.DataCorruption, "decode "+label, err)
		}
		out[k] = r
	}
	return out, nil
}

// pqStringArray renders a Go string slice as a Postgres text[] literal,
// avoiding an extra dependency purely for array binding.
func pqStringArray(ss []string) string {
	out := "{"
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += `"` + escapeArrayElem(s) + `"`
	}
	return out + "}"
}

func escapeArrayElem(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b = append(b, '\\')
		}
		b = append(b, s[i])
	}
	return string(b)
}

// txLock is the Lock handed back by FetchAcquire: the underlying SQL
// transaction itself. Release aborts it; SaveRelease commits it. This is
// the "true lock on the backend" §5 requires: row locks taken via
// SELECT ... FOR UPDATE live for the lifetime of the transaction.
type txLock struct {
	tx   *sql.Tx
	done bool
}

func (l *txLock) Release() {
	if !l.done {
		l.tx.Rollback()
		l.done = true
	}
}

func (s *Store) FetchAcquire(ctx context.Context, label string, keys []string) (map[string]store.Row, store.Lock, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.DatabaseServerBusy, "begin", err)
	}
	out := make(map[string]store.Row, len(keys))
	if len(keys) > 0 {
		query := fmt.Sprintf(`SELECT pkey, payload FROM %s WHERE pkey = ANY($1) FOR UPDATE`, pgIdent(label))
		rows, err := tx.QueryContext(ctx, query, pqStringArray(keys))
		if err != nil {
			tx.Rollback()
			return nil, nil, apperr.Wrap(apperr.AcquireLockFailure, "select for update "+label, err)
		}
		for rows.Next() {
			var k string
			var raw []byte
			if err := rows.Scan(&k, &raw); err != nil {
				rows.Close()
				tx.Rollback()
				return nil, nil, apperr.Wrap(apperr.DataCorruption, "scan "+label, err)
			}
			r, err := decodeRow(raw)
			if err != nil {
				rows.Close()
				tx.Rollback()
				return nil, nil, apperr.Wrap(apperr.DataCorruption, "decode "+label, err)
			}
			out[k] = r
		}
		rows.Close()
	}
	// Rows that don't exist yet take no row lock; an advisory lock keyed
	// on the table+keys closes that race for first-time inserts (two
	// concurrent reservations racing to create the same stock batch).
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, label+":"+joinKeys(keys)); err != nil {
		tx.Rollback()
		return nil, nil, apperr.Wrap(apperr.AcquireLockFailure, "advisory lock", err)
	}
	return out, &txLock{tx: tx}, nil
}

func joinKeys(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}

func (s *Store) SaveRelease(ctx context.Context, label string, data map[string]store.Row, lock store.Lock) (int, error) {
	tl, ok := lock.(*txLock)
	if !ok {
		return 0, apperr.New(apperr.DataCorruption, "lock not issued by sqlstore")
	}
	defer func() { tl.done = true }()
	written := 0
	for k, v := range data {
		b, err := encodeRow(v)
		if err != nil {
			tl.tx.Rollback()
			return written, apperr.Wrap(apperr.InvalidInput, "encode row", err)
		}
		q := fmt.Sprintf(
			`INSERT INTO %s (pkey, payload) VALUES ($1,$2)
			 ON CONFLICT (pkey) DO UPDATE SET payload = EXCLUDED.payload`,
			pgIdent(label),
		)
		if _, err := tl.tx.ExecContext(ctx, q, k, b); err != nil {
			tl.tx.Rollback()
			return written, apperr.Wrap(apperr.DatabaseServerBusy, "upsert "+label, err)
		}
		written++
	}
	if err := tl.tx.Commit(); err != nil {
		return written, apperr.Wrap(apperr.DatabaseServerBusy, "commit", err)
	}
	return written, nil
}

func (s *Store) Delete(ctx context.Context, label string, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE pkey = ANY($1)`, pgIdent(label))
	res, err := s.DB.ExecContext(ctx, q, pqStringArray(keys))
	if err != nil {
		return 0, apperr.Wrap(apperr.DatabaseServerBusy, "delete "+label, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) FilterKeys(ctx context.Context, label string, pred func(key string, row store.Row) bool) ([]string, error) {
	q := fmt.Sprintf(`SELECT pkey, payload FROM %s`, pgIdent(label))
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseServerBusy, "select "+label, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		var raw []byte
		if err := rows.Scan(&k, &raw); err != nil {
			return nil, apperr.Wrap(apperr.DataCorruption, "scan "+label, err)
		}
		r, err := decodeRow(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.DataCorruption, "decode "+label, err)
		}
		if pred(k, r) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Acquire exposes a raw connection for multi-table atomic writes.
func (s *Store) Acquire(ctx context.Context) (store.Conn, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseServerBusy, "begin", err)
	}
	return &txConn{tx: tx}, nil
}

type txConn struct{ tx *sql.Tx }

func (c *txConn) Commit() error   { return c.tx.Commit() }
func (c *txConn) Rollback() error { return c.tx.Rollback() }

// Tx exposes the underlying *sql.Tx for repositories that need typed,
// bit-exact SQL against a Conn acquired from this store.
func Tx(c store.Conn) *sql.Tx { return c.(*txConn).tx }

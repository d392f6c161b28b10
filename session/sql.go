package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour of an [SQLStore].
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) dsn(raw string) string {
	if d != DialectSQLite || strings.HasPrefix(raw, "file:") {
		return raw
	}
	return "file:" + raw + "?_pragma=busy_timeout(5000)"
}

const (
	createQuery = `INSERT INTO active_sessions
		(session_id, user_id, ip, device, browser, os, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING`
	getQuery = `SELECT session_id, user_id, ip, device, browser, os, created_at, last_active
		FROM active_sessions WHERE session_id = ?`
	touchQuery = `UPDATE active_sessions SET last_active = ?
		WHERE session_id = ? AND last_active < ?`
	listByUserQuery = `SELECT session_id, user_id, ip, device, browser, os, created_at, last_active
		FROM active_sessions WHERE user_id = ?
		ORDER BY last_active DESC, created_at DESC`
	revokeQuery = `DELETE FROM active_sessions WHERE session_id = ?`
)

type sqlQueries struct {
	create, get, touch, listByUser, revoke string
}

// SQLStore is a [Registry] on database/sql. The same schema and queries
// serve SQLite and Postgres; placeholders are rewritten for Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	q       sqlQueries
}

// OpenSQL picks Postgres when databaseURL is set and SQLite at sqlitePath
// otherwise, applies migrations and returns a ready store.
func OpenSQL(ctx context.Context, databaseURL, sqlitePath string) (*SQLStore, error) {
	dialect, dsn := DialectSQLite, sqlitePath
	if databaseURL != "" {
		dialect, dsn = DialectPostgres, databaseURL
	}

	if err := Migrate(dialect, dsn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	db, err := sql.Open(dialect.driverName(), dialect.dsn(dsn))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return NewSQLStore(db, dialect), nil
}

// NewSQLStore wraps an open, migrated database handle. The store owns db
// from here on and closes it in Close.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	bind := func(q string) string { return q }
	if dialect == DialectPostgres {
		bind = rebindDollar
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		q: sqlQueries{
			create:     bind(createQuery),
			get:        bind(getQuery),
			touch:      bind(touchQuery),
			listByUser: bind(listByUserQuery),
			revoke:     bind(revokeQuery),
		},
	}
}

// Dialect reports which database the store talks to.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Create inserts s. An existing row with the same id yields ErrDuplicate.
func (s *SQLStore) Create(ctx context.Context, sess *Session) error {
	if err := validateNew(sess); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q.create,
		sess.ID, sess.UserID, sess.IP, sess.Device, sess.Browser, sess.OS,
		sess.CreatedAt.UnixMilli(), sess.LastActive.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// Get loads one session.
func (s *SQLStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, s.q.get, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sess, nil
}

// Touch only ever moves last_active forward, so heartbeats that land out of
// order cannot rewind it.
func (s *SQLStore) Touch(ctx context.Context, id string, at time.Time) error {
	ms := at.UnixMilli()
	if _, err := s.db.ExecContext(ctx, s.q.touch, ms, id, ms); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListByUser returns sessions ordered by last activity, newest first.
func (s *SQLStore) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, s.q.listByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

// Revoke deletes the row if it exists.
func (s *SQLStore) Revoke(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.q.revoke, id); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                  Session
		createdAt, lastActive int64
	)
	if err := row.Scan(
		&sess.ID, &sess.UserID, &sess.IP, &sess.Device, &sess.Browser, &sess.OS,
		&createdAt, &lastActive,
	); err != nil {
		return nil, err
	}
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.LastActive = time.UnixMilli(lastActive)
	return &sess, nil
}

// rebindDollar rewrites ? placeholders to $1, $2, ... The queries in this
// file contain no literal question marks.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

package inbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS messages (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL DEFAULT '',
    identity    TEXT NOT NULL,
    grp         INTEGER NOT NULL DEFAULT 0,
    total_parts INTEGER NOT NULL DEFAULT 0,
    ciphertext  BLOB,
    plaintext   BLOB,
    received_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_identity ON messages (identity, received_at);
`

// timeLayout is fixed width so received_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, msgs ...Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO messages
			(id, session_id, identity, grp, total_parts, ciphertext, plaintext, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		_, err := stmt.ExecContext(ctx,
			m.ID, m.SessionID, m.Identity, m.Group, m.TotalParts,
			m.Ciphertext, m.Plaintext, m.ReceivedAt.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

const selectColumns = `SELECT id, session_id, identity, grp, total_parts, ciphertext, plaintext, received_at FROM messages`

func (s *SQLiteStore) List(ctx context.Context, identity string) ([]Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if identity == "" {
		rows, err = s.db.QueryContext(ctx, selectColumns+` ORDER BY received_at, id`)
	} else {
		rows, err = s.db.QueryContext(ctx, selectColumns+` WHERE identity = ? ORDER BY received_at, id`, identity)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return msgs, nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (Message, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, id, err)
	}
	return m, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete failed: %s: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (Message, error) {
	var (
		m        Message
		received string
	)
	if err := row.Scan(&m.ID, &m.SessionID, &m.Identity, &m.Group, &m.TotalParts,
		&m.Ciphertext, &m.Plaintext, &received); err != nil {
		return Message{}, err
	}
	t, err := time.Parse(timeLayout, received)
	if err != nil {
		return Message{}, fmt.Errorf("parse received_at: %w", err)
	}
	m.ReceivedAt = t
	return m, nil
}

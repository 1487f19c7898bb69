// Package sqlite implements store.Store on top of SQLite, the masterserver's
// credential backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openrts/masterserver/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store implements store.Store for SQLite.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the player database at dbPath and applies
// its schema.
func New(dbPath string) (*Store, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup opens the database at dbPath and runs setup before the
// connection is verified. New uses it to apply the players schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite serializes writes internally; a single connection avoids
	// "database is locked" errors under concurrent access better than a
	// pool would.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetPlayer retrieves a player by username.
func (s *Store) GetPlayer(ctx context.Context, username string) (*store.Player, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM players
		WHERE username = ?
	`
	var p store.Player
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&p.ID,
		&p.Username,
		&p.PasswordHash,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query player: %w", err)
	}
	return &p, nil
}

// AddPlayer inserts a new player with an already-hashed password.
func (s *Store) AddPlayer(ctx context.Context, username, passwordHash string) (*store.Player, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO players (username, password_hash) VALUES (?, ?)`,
		username, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, fmt.Errorf("insert player: %w", err)
	}

	if _, err := result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetPlayer(ctx, username)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

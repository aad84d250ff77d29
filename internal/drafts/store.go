// Package drafts persists in-progress answer text so a failed submit or a
// crashed process never loses what the user already typed or dictated.
package drafts

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed draft store keyed by
// (sessionID, questionIndex, followUpIndex).
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the draft database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "drafts.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS drafts (
			session_id TEXT NOT NULL,
			question_index INTEGER NOT NULL,
			follow_up_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (session_id, question_index, follow_up_index)
		);
	`); err != nil {
		return fmt.Errorf("create drafts table: %w", err)
	}
	return nil
}

// Save upserts the draft text for one answer slot.
func (s *Store) Save(sessionID string, question, followUp int, text string) error {
	_, err := s.db.Exec(`
		INSERT INTO drafts (session_id, question_index, follow_up_index, text, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, question_index, follow_up_index)
		DO UPDATE SET text = excluded.text, updated_at = excluded.updated_at
	`, sessionID, question, followUp, text, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Load returns the draft text for one answer slot, or "" if none exists.
func (s *Store) Load(sessionID string, question, followUp int) (string, error) {
	var text string
	err := s.db.QueryRow(`
		SELECT text FROM drafts
		WHERE session_id = ? AND question_index = ? AND follow_up_index = ?
	`, sessionID, question, followUp).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load draft: %w", err)
	}
	return text, nil
}

// Clear removes the draft for one answer slot, typically after a successful
// submit.
func (s *Store) Clear(sessionID string, question, followUp int) error {
	_, err := s.db.Exec(`
		DELETE FROM drafts
		WHERE session_id = ? AND question_index = ? AND follow_up_index = ?
	`, sessionID, question, followUp)
	if err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

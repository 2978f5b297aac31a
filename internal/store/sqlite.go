package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/usermanpro/server/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS assistants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		prompt TEXT NOT NULL,
		chat_history TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assistants_created ON assistants(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateAssistant inserts a new assistant row with an empty transcript.
func (s *SQLiteStore) CreateAssistant(ctx context.Context, name, prompt string) (int64, error) {
	query := `INSERT INTO assistants (name, prompt, chat_history, created_at) VALUES (?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query, name, prompt, "[]", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert assistant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("assistant insert id: %w", err)
	}
	return id, nil
}

// ListAssistants returns a full snapshot of all assistants keyed by id.
func (s *SQLiteStore) ListAssistants(ctx context.Context) (map[int64]*domain.Assistant, error) {
	query := `SELECT id, name, prompt, chat_history, created_at FROM assistants`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query assistants: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close assistant rows", "error", closeErr)
		}
	}()

	assistants := make(map[int64]*domain.Assistant)
	for rows.Next() {
		var a domain.Assistant
		var historyJSON sql.NullString
		var createdAt int64

		if err := rows.Scan(&a.ID, &a.Name, &a.Prompt, &historyJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan assistant row: %w", err)
		}

		a.CreatedAt = time.Unix(createdAt, 0)
		a.ChatHistory, err = decodeHistory(historyJSON.String)
		if err != nil {
			return nil, fmt.Errorf("decode chat history for assistant %d: %w", a.ID, err)
		}
		assistants[a.ID] = &a
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assistants: %w", err)
	}

	return assistants, nil
}

// ReplaceChatHistory overwrites the stored transcript for an assistant.
// A missing id is reported as ErrNotFound rather than silently ignored, so
// a registry/store divergence surfaces instead of dropping a transcript.
func (s *SQLiteStore) ReplaceChatHistory(ctx context.Context, id int64, history []domain.Turn) error {
	encoded, err := encodeHistory(history)
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}

	query := `UPDATE assistants SET chat_history = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, encoded, id)
	if err != nil {
		return fmt.Errorf("update chat history: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("replace chat history for assistant %d: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteAssistant removes an assistant row. Idempotent.
func (s *SQLiteStore) DeleteAssistant(ctx context.Context, id int64) error {
	query := `DELETE FROM assistants WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete assistant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Debug("DeleteAssistant affected 0 rows", "assistant_id", id)
	}

	return nil
}

// CountCreatedPerDay groups assistants by the calendar date of created_at.
func (s *SQLiteStore) CountCreatedPerDay(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT strftime('%Y-%m-%d', created_at, 'unixepoch') AS day, COUNT(*)
		FROM assistants GROUP BY day`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query created per day: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close created-per-day rows", "error", closeErr)
		}
	}()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("scan created-per-day row: %w", err)
		}
		counts[day] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate created per day: %w", err)
	}

	return counts, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func encodeHistory(history []domain.Turn) (string, error) {
	if history == nil {
		history = []domain.Turn{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeHistory(raw string) ([]domain.Turn, error) {
	if raw == "" {
		return []domain.Turn{}, nil
	}
	var history []domain.Turn
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, err
	}
	if history == nil {
		history = []domain.Turn{}
	}
	return history, nil
}

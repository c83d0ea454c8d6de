package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite opens (creating when needed) the database at dbPath.
func NewSQLite(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY between the turn and CRUD paths.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{
		db:  db,
		log: logger.With().Str("component", "store").Logger(),
		now: func() time.Time { return time.Now().UTC() },
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	s.log.Info().Str("path", dbPath).Msg("sqlite store ready")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		thread_name TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		edited_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		sender TEXT NOT NULL,
		kind TEXT NOT NULL,
		body TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		edited_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, seq);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateThread inserts a new thread.
func (s *SQLiteStore) CreateThread(ctx context.Context, thread chat.Thread) (chat.Thread, error) {
	now := s.now()
	thread.ID = uuid.NewString()
	if thread.Name == "" {
		thread.Name = chat.DefaultThreadName
	}
	thread.Metadata = chat.MergeMetadata(nil, thread.Metadata)
	thread.CreatedAt = now
	thread.EditedAt = now

	meta, err := encodeMetadata(thread.Metadata)
	if err != nil {
		return chat.Thread{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threads (id, thread_name, metadata, created_at, edited_at) VALUES (?, ?, ?, ?, ?)`,
		thread.ID, thread.Name, meta, now.UnixNano(), now.UnixNano())
	if err != nil {
		return chat.Thread{}, fmt.Errorf("insert thread: %w", err)
	}
	return thread, nil
}

// GetThread retrieves a thread by ID.
func (s *SQLiteStore) GetThread(ctx context.Context, threadID string) (chat.Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, thread_name, metadata, created_at, edited_at FROM threads WHERE id = ?`, threadID)

	thread, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Thread{}, chat.ErrThreadNotFound
	}
	if err != nil {
		return chat.Thread{}, fmt.Errorf("scan thread row: %w", err)
	}
	return thread, nil
}

// ListThreads returns threads ordered by latest message, then creation time.
func (s *SQLiteStore) ListThreads(ctx context.Context) ([]chat.ThreadSummary, error) {
	query := `
		SELECT t.id, t.thread_name, t.metadata, t.created_at, t.edited_at, MAX(m.created_at)
		FROM threads t
		LEFT JOIN messages m ON m.thread_id = t.id
		GROUP BY t.id
		ORDER BY MAX(m.created_at) IS NULL, MAX(m.created_at) DESC, t.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var out []chat.ThreadSummary
	for rows.Next() {
		var (
			summary         chat.ThreadSummary
			meta            string
			created, edited int64
			latest          sql.NullInt64
		)
		if err := rows.Scan(&summary.ID, &summary.Name, &meta, &created, &edited, &latest); err != nil {
			return nil, fmt.Errorf("scan thread summary: %w", err)
		}
		if summary.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		summary.CreatedAt = fromNanos(created)
		summary.EditedAt = fromNanos(edited)
		if latest.Valid {
			ts := fromNanos(latest.Int64)
			summary.LatestMessage = &ts
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// UpdateThread replaces the thread's name and metadata.
func (s *SQLiteStore) UpdateThread(ctx context.Context, thread chat.Thread) (chat.Thread, error) {
	meta, err := encodeMetadata(thread.Metadata)
	if err != nil {
		return chat.Thread{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE threads SET thread_name = ?, metadata = ?, edited_at = ? WHERE id = ?`,
		thread.Name, meta, s.now().UnixNano(), thread.ID)
	if err != nil {
		return chat.Thread{}, fmt.Errorf("update thread: %w", err)
	}
	if err := requireOneRow(res, chat.ErrThreadNotFound); err != nil {
		return chat.Thread{}, err
	}
	return s.GetThread(ctx, thread.ID)
}

// DeleteThread removes the thread; messages go with it through the foreign key.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return requireOneRow(res, chat.ErrThreadNotFound)
}

// CreateMessage appends a message to its thread.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	if _, err := s.GetThread(ctx, message.ThreadID); err != nil {
		return chat.Message{}, err
	}

	now := s.now()
	message.ID = uuid.NewString()
	message.Metadata = chat.MergeMetadata(nil, message.Metadata)
	message.CreatedAt = now
	message.EditedAt = now

	meta, err := encodeMetadata(message.Metadata)
	if err != nil {
		return chat.Message{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, sender, kind, body, metadata, created_at, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.ThreadID, message.Sender, message.Kind, message.Body, meta,
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return message, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (chat.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, sender, kind, body, metadata, created_at, edited_at
		FROM messages WHERE id = ?`, messageID)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("scan message row: %w", err)
	}
	return msg, nil
}

// UpdateMessage overwrites sender, kind, body and metadata.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	meta, err := encodeMetadata(message.Metadata)
	if err != nil {
		return chat.Message{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET sender = ?, kind = ?, body = ?, metadata = ?, edited_at = ?
		WHERE id = ?`,
		message.Sender, message.Kind, message.Body, meta, s.now().UnixNano(), message.ID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("update message: %w", err)
	}
	if err := requireOneRow(res, chat.ErrMessageNotFound); err != nil {
		return chat.Message{}, err
	}
	return s.GetMessage(ctx, message.ID)
}

// DeleteMessage removes one message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, messageID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return requireOneRow(res, chat.ErrMessageNotFound)
}

// ListMessages returns the thread's messages in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, threadID string) ([]chat.Message, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, sender, kind, body, metadata, created_at, edited_at
		FROM messages WHERE thread_id = ? ORDER BY seq ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// CountMessages reports how many messages the thread holds.
func (s *SQLiteStore) CountMessages(ctx context.Context, threadID string) (int, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE thread_id = ?`, threadID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// Get reads a setting.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if !settings.IsKnown(key) {
		return "", false, settings.ErrUnknownKey
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a setting.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if !settings.IsKnown(key) {
		return settings.ErrUnknownKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// SeedSettings stores values for keys that have never been set.
func (s *SQLiteStore) SeedSettings(ctx context.Context, values map[string]string) error {
	for key, value := range values {
		if value == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, key, value); err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThread(row scanner) (chat.Thread, error) {
	var (
		thread          chat.Thread
		meta            string
		created, edited int64
	)
	if err := row.Scan(&thread.ID, &thread.Name, &meta, &created, &edited); err != nil {
		return chat.Thread{}, err
	}
	var err error
	if thread.Metadata, err = decodeMetadata(meta); err != nil {
		return chat.Thread{}, err
	}
	thread.CreatedAt = fromNanos(created)
	thread.EditedAt = fromNanos(edited)
	return thread, nil
}

func scanMessage(row scanner) (chat.Message, error) {
	var (
		msg             chat.Message
		meta            string
		created, edited int64
	)
	if err := row.Scan(&msg.ID, &msg.ThreadID, &msg.Sender, &msg.Kind, &msg.Body, &meta, &created, &edited); err != nil {
		return chat.Message{}, err
	}
	var err error
	if msg.Metadata, err = decodeMetadata(meta); err != nil {
		return chat.Message{}, err
	}
	msg.CreatedAt = fromNanos(created)
	msg.EditedAt = fromNanos(edited)
	return msg, nil
}

func encodeMetadata(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(raw string) (map[string]any, error) {
	meta := map[string]any{}
	if raw == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

func requireOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

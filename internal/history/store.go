package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hablalabs/habla-core/internal/config"
	_ "modernc.org/sqlite"
)

// Entry is one delivered transcript kept in the rolling history.
type Entry struct {
	ID             int64
	RunID          string
	OriginalText   string
	TranslatedText string
	Confidence     float64
	Language       string
	AIEnhanced     bool
	CreatedAt      time.Time
}

// Store keeps the most recent transcripts in SQLite, bounded to the
// configured entry count. When history is disabled the store is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the history store according to config.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prune(ctx); err != nil {
		log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcripts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    original_text TEXT NOT NULL,
    translated_text TEXT NOT NULL,
    confidence REAL,
    language TEXT,
    ai_enhanced INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enabled reports whether transcripts are actually persisted.
func (s *Store) Enabled() bool {
	return s.db != nil
}

// Append records one transcript and trims the history to the configured
// maximum, oldest entries first.
func (s *Store) Append(ctx context.Context, entry Entry) error {
	if s.db == nil {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts(run_id, original_text, translated_text, confidence, language, ai_enhanced, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.OriginalText, entry.TranslatedText, entry.Confidence, entry.Language, entry.AIEnhanced, entry.CreatedAt)
	if err != nil {
		return err
	}
	return s.prune(ctx)
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.cfg.MaxEntries
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, original_text, translated_text, confidence, language, ai_enhanced, created_at
		 FROM transcripts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.RunID, &e.OriginalText, &e.TranslatedText, &e.Confidence, &e.Language, &e.AIEnhanced, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) prune(ctx context.Context) error {
	if s.db == nil || s.cfg.MaxEntries <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transcripts WHERE id IN (
			SELECT id FROM transcripts ORDER BY id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxEntries)
	return err
}

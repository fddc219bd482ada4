package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/honeygrid/scamtrap/internal/domain"
	"github.com/honeygrid/scamtrap/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteArchive implements Archive using SQLite.
type SQLiteArchive struct {
	db      *sql.DB
	writeMu sync.Mutex // serialize writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed archive.
func NewSQLite(dbPath string) (Archive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	archive := &SQLiteArchive{db: db}
	if err := archive.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return archive, nil
}

func (a *SQLiteArchive) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS archived_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_active_at INTEGER NOT NULL,
		archived_at INTEGER NOT NULL,
		scam_detected INTEGER NOT NULL,
		max_score REAL NOT NULL,
		turn_count INTEGER NOT NULL,
		scammer_turns INTEGER NOT NULL,
		categories_json TEXT NOT NULL,
		entities_json TEXT NOT NULL,
		verdicts_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_archived_session_id ON archived_sessions(session_id);
	CREATE INDEX IF NOT EXISTS idx_archived_at ON archived_sessions(archived_at);
	`
	if _, err := a.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (a *SQLiteArchive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// SaveSession appends the session's final state. Retries on SQLite
// concurrency errors with exponential backoff.
func (a *SQLiteArchive) SaveSession(ctx context.Context, s *domain.Session) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = a.saveSessionOnce(ctx, s)
		if err == nil {
			return nil
		}
		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("archive write hit busy database, retrying",
				"session_id", s.ID, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return fmt.Errorf("archive session %s: %w", s.ID, err)
}

func (a *SQLiteArchive) saveSessionOnce(ctx context.Context, s *domain.Session) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	categories, err := json.Marshal(s.CategoryList())
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	entities, err := json.Marshal(s.EntityList())
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	verdicts, err := json.Marshal(s.VerdictTrend)
	if err != nil {
		return fmt.Errorf("marshal verdicts: %w", err)
	}

	scamDetected := 0
	if s.MaxScore > 0 && len(s.VerdictTrend) > 0 {
		for _, v := range s.VerdictTrend {
			if v.IsScam {
				scamDetected = 1
				break
			}
		}
	}

	query := `
		INSERT INTO archived_sessions (
			session_id, created_at, last_active_at, archived_at,
			scam_detected, max_score, turn_count, scammer_turns,
			categories_json, entities_json, verdicts_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = a.db.ExecContext(ctx, query,
		s.ID, s.CreatedAt.Unix(), s.LastActiveAt.Unix(), time.Now().Unix(),
		scamDetected, s.MaxScore, len(s.Turns), s.ScammerTurnCount(),
		string(categories), string(entities), string(verdicts),
	)
	if err != nil {
		return fmt.Errorf("insert archived session: %w", err)
	}
	return nil
}

// CountSessions returns the number of archived session records.
func (a *SQLiteArchive) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_sessions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archived sessions: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"go.uber.org/zap"

	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/session"
)

// PostgresStore keeps reasoning sessions in a single JSONB table.
type PostgresStore struct {
	DB     *sql.DB
	logger *zap.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Successfully connected to the database")
	return &PostgresStore{DB: db, logger: logger}, nil
}

// EnsureSchema creates the session table if it does not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reasoning_sessions (
            id TEXT PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            last_updated TIMESTAMPTZ NOT NULL,
            state JSONB NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_reasoning_sessions_last_updated ON reasoning_sessions(last_updated)`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*session.State, error) {
	var raw []byte
	err := s.DB.QueryRowContext(ctx, `SELECT state FROM reasoning_sessions WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var st session.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &st, nil
}

func (s *PostgresStore) Save(ctx context.Context, st *session.State) error {
	if st == nil || st.ID == "" {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "session without id")
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", st.ID, err)
	}

	query := `
        INSERT INTO reasoning_sessions (id, created_at, last_updated, state)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE
        SET last_updated = EXCLUDED.last_updated, state = EXCLUDED.state
    `
	if _, err := s.DB.ExecContext(ctx, query, st.ID, st.CreatedAt, st.LastUpdated, raw); err != nil {
		return fmt.Errorf("failed to save session %s: %w", st.ID, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM reasoning_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) EvictBefore(ctx context.Context, ts time.Time) (int, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM reasoning_sessions WHERE last_updated < $1`, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to evict sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count evicted sessions: %w", err)
	}
	if n > 0 {
		s.logger.Debug("Evicted expired sessions", zap.Int64("count", n))
	}
	return int(n), nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM reasoning_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// ListIDs returns every session id, least recently updated first.
func (s *PostgresStore) ListIDs(ctx context.Context) ([]string, error) {
	var ids pq.StringArray
	query := `SELECT COALESCE(array_agg(id ORDER BY last_updated), '{}') FROM reasoning_sessions`
	if err := s.DB.QueryRowContext(ctx, query).Scan(&ids); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return []string(ids), nil
}

// Oldest names the least recently updated session other than exclude.
func (s *PostgresStore) Oldest(ctx context.Context, exclude string) (string, bool, error) {
	var id string
	query := `SELECT id FROM reasoning_sessions WHERE id <> $1 ORDER BY last_updated LIMIT 1`
	err := s.DB.QueryRowContext(ctx, query, exclude).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to find oldest session: %w", err)
	}
	return id, true, nil
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/armchr/testgen/internal/model"
	"go.uber.org/zap"
)

// SessionStore persists finished generation sessions as JSON rows.
type SessionStore struct {
	conn   *Connection
	db     *sql.DB
	logger *zap.Logger
}

// SessionSummary is the listing view of a stored session.
type SessionSummary struct {
	ID         string            `json:"id"`
	Project    string            `json:"project"`
	ClassFQN   string            `json:"class_fqn"`
	MethodName string            `json:"method_name"`
	Success    bool              `json:"success"`
	ModeUsed   model.ContextMode `json:"mode_used"`
	Attempts   int               `json:"attempts"`
	Error      string            `json:"error,omitempty"`
	StartedAt  int64             `json:"started_at"`
	DurationMS int64             `json:"duration_ms"`
}

func NewSessionStore(ctx context.Context, conn *Connection, logger *zap.Logger) (*SessionStore, error) {
	store := &SessionStore{conn: conn, db: conn.GetDB(), logger: logger}
	if err := store.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure table: %w", err)
	}
	return store, nil
}

// EnsureTable creates the generation_sessions table if it doesn't exist
func (s *SessionStore) EnsureTable(ctx context.Context) error {
	c := s.conn
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS generation_sessions (
		id %s PRIMARY KEY,
		project %s NOT NULL,
		class_fqn %s NOT NULL,
		method_name %s NOT NULL,
		success BOOLEAN NOT NULL,
		mode_used VARCHAR(32),
		attempts INT NOT NULL DEFAULT 0,
		error_message TEXT,
		payload %s NOT NULL,
		started_at BIGINT NOT NULL,
		duration_ms BIGINT NOT NULL
	)%s`, c.keyText(64), c.keyText(191), c.keyText(400), c.keyText(255), c.longText(), c.tableSuffix())

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return c.createIndex(ctx, "idx_sessions_target", "generation_sessions", "project, class_fqn")
}

// SaveSession stores a finished session. Sessions are immutable, so saving an
// existing id is an error.
func (s *SessionStore) SaveSession(ctx context.Context, project string, session *model.GenerationSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	duration := session.FinishedAt.Sub(session.StartedAt).Milliseconds()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generation_sessions (id, project, class_fqn, method_name, success, mode_used, attempts,
			error_message, payload, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, project, session.ClassFQN, session.MethodName, session.Success, string(session.ModeUsed),
		len(session.Attempts), session.Error, string(payload), session.StartedAt.UnixMilli(), duration,
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}

	s.logger.Debug("Saved generation session",
		zap.String("session_id", session.ID),
		zap.Bool("success", session.Success),
		zap.Int("attempts", len(session.Attempts)))
	return nil
}

// GetSession returns the full stored session, or ErrNotFound.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*model.GenerationSession, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM generation_sessions WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session model.GenerationSession
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &session, nil
}

// ListSessions returns the most recent sessions of a project, newest first.
func (s *SessionStore) ListSessions(ctx context.Context, project string, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project, class_fqn, method_name, success, mode_used, attempts, error_message, started_at, duration_ms
		FROM generation_sessions WHERE project = ?
		ORDER BY started_at DESC, id DESC LIMIT ?`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var mode, errMsg sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Project, &sum.ClassFQN, &sum.MethodName, &sum.Success, &mode,
			&sum.Attempts, &errMsg, &sum.StartedAt, &sum.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.ModeUsed = model.ContextMode(mode.String)
		sum.Error = errMsg.String
		out = append(out, sum)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dxtr-labs/v1.0-sub000/graph"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE COLLATE NOCASE,
	name TEXT,
	password_hash TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS api_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	token TEXT NOT NULL UNIQUE,
	expires_at TEXT NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	state TEXT NOT NULL,
	data BLOB NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workflows (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT,
	name TEXT NOT NULL,
	category_id TEXT,
	definition BLOB NOT NULL,
	cron_expr TEXT,
	active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	workflow_id TEXT NOT NULL,
	status TEXT NOT NULL,
	detail TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	FOREIGN KEY(workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_api_sessions_token ON api_sessions(token);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
CREATE INDEX IF NOT EXISTS idx_workflows_scheduled ON workflows(active, cron_expr);
CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_id, started_at);`

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	DSN string
}

// SQLiteStore persists all records in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite-backed store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlite store dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- users / sessions -----------------------------------------------------

func (s *SQLiteStore) CreateUser(ctx context.Context, rec UserRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		strings.ToLower(rec.Email),
		rec.Name,
		rec.PasswordHash,
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "users") {
			return ErrUserExists
		}
		return fmt.Errorf("sqlite store create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, name, password_hash, created_at, updated_at
FROM users WHERE email = ?`, strings.ToLower(email))
	return scanUser(row)
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, name, password_hash, created_at, updated_at
FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (UserRecord, bool, error) {
	var (
		rec       UserRecord
		name      sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.Email, &name, &rec.PasswordHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, false, nil
	}
	if err != nil {
		return UserRecord{}, false, fmt.Errorf("sqlite store scan user: %w", err)
	}
	rec.Name = name.String
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return UserRecord{}, false, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return UserRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess SessionRecord) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO api_sessions (id, user_id, token, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Token,
		formatTime(sess.ExpiresAt), formatTime(sess.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite store create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSessionByToken(ctx context.Context, token string) (SessionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, token, expires_at, created_at
FROM api_sessions WHERE token = ?`, token)

	var (
		sess      SessionRecord
		expiresAt string
		createdAt string
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Token, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, fmt.Errorf("sqlite store scan session: %w", err)
	}
	if sess.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return SessionRecord{}, false, err
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return SessionRecord{}, false, err
	}
	if time.Now().After(sess.ExpiresAt) {
		return SessionRecord{}, false, ErrSessionExpired
	}
	return sess, true, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite store delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store delete session affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) CleanExpiredSessions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM api_sessions WHERE expires_at <= ?`,
		formatTime(time.Now())); err != nil {
		return fmt.Errorf("sqlite store clean expired sessions: %w", err)
	}
	return nil
}

// --- conversations --------------------------------------------------------

func (s *SQLiteStore) SaveConversation(ctx context.Context, rec ConversationRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversations (id, user_id, state, data, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	state = excluded.state,
	data = excluded.data,
	updated_at = excluded.updated_at`,
		rec.ID, nullIfEmpty(rec.UserID), rec.State, []byte(rec.Data),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite store save conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (ConversationRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, state, data, created_at, updated_at
FROM conversations WHERE id = ?`, id)

	rec, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationRecord{}, false, nil
	}
	if err != nil {
		return ConversationRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]ConversationRecord, error) {
	query := `
SELECT id, user_id, state, data, created_at, updated_at
FROM conversations`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store list conversations: %w", err)
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		rec, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store list conversations rows: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite store delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store delete conversation affected rows: %w", err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(scanner rowScanner) (ConversationRecord, error) {
	var (
		rec       ConversationRecord
		userID    sql.NullString
		data      []byte
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&rec.ID, &userID, &rec.State, &data, &createdAt, &updatedAt); err != nil {
		return ConversationRecord{}, err
	}
	rec.UserID = userID.String
	rec.Data = json.RawMessage(append([]byte(nil), data...))

	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return ConversationRecord{}, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ConversationRecord{}, err
	}
	return rec, nil
}

// --- workflows ------------------------------------------------------------

func (s *SQLiteStore) ListWorkflows(ctx context.Context, userID string) ([]WorkflowRecord, error) {
	query := `
SELECT id, user_id, name, category_id, definition, cron_expr, active, created_at, updated_at
FROM workflows`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY seq ASC`
	return s.queryWorkflows(ctx, query, args...)
}

func (s *SQLiteStore) ListScheduled(ctx context.Context) ([]WorkflowRecord, error) {
	return s.queryWorkflows(ctx, `
SELECT id, user_id, name, category_id, definition, cron_expr, active, created_at, updated_at
FROM workflows
WHERE active = 1 AND cron_expr IS NOT NULL AND TRIM(cron_expr) <> ''
ORDER BY seq ASC`)
}

func (s *SQLiteStore) queryWorkflows(ctx context.Context, query string, args ...any) ([]WorkflowRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store list workflows: %w", err)
	}
	defer rows.Close()

	var records []WorkflowRecord
	for rows.Next() {
		rec, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store list workflows rows: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (WorkflowRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, name, category_id, definition, cron_expr, active, created_at, updated_at
FROM workflows WHERE id = ?`, id)

	rec, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkflowRecord{}, false, nil
	}
	if err != nil {
		return WorkflowRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) CreateWorkflow(ctx context.Context, rec WorkflowRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	definition, err := marshalDefinition(rec.Definition)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO workflows (id, user_id, name, category_id, definition, cron_expr, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		nullIfEmpty(rec.UserID),
		rec.Name,
		nullIfEmpty(rec.CategoryID),
		definition,
		nullIfEmpty(rec.CronExpr),
		boolToInt(rec.Active),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "workflows") {
			return ErrWorkflowExists
		}
		return fmt.Errorf("sqlite store create workflow: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateWorkflow(ctx context.Context, rec WorkflowRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	definition, err := marshalDefinition(rec.Definition)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE workflows
SET user_id = ?, name = ?, category_id = ?, definition = ?, cron_expr = ?, active = ?, updated_at = ?
WHERE id = ?`,
		nullIfEmpty(rec.UserID),
		rec.Name,
		nullIfEmpty(rec.CategoryID),
		definition,
		nullIfEmpty(rec.CronExpr),
		boolToInt(rec.Active),
		formatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite store update workflow: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store update workflow affected rows: %w", err)
	}
	if affected == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite store delete workflow: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store delete workflow affected rows: %w", err)
	}
	if affected == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func scanWorkflow(scanner rowScanner) (WorkflowRecord, error) {
	var (
		rec        WorkflowRecord
		userID     sql.NullString
		categoryID sql.NullString
		definition []byte
		cronExpr   sql.NullString
		active     int
		createdAt  string
		updatedAt  string
	)
	if err := scanner.Scan(&rec.ID, &userID, &rec.Name, &categoryID, &definition, &cronExpr, &active, &createdAt, &updatedAt); err != nil {
		return WorkflowRecord{}, err
	}
	rec.UserID = userID.String
	rec.CategoryID = categoryID.String
	rec.CronExpr = cronExpr.String
	rec.Active = active == 1

	if len(definition) > 0 {
		var wf graph.Workflow
		if err := json.Unmarshal(definition, &wf); err != nil {
			return WorkflowRecord{}, fmt.Errorf("sqlite store unmarshal workflow definition: %w", err)
		}
		rec.Definition = &wf
	}

	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return WorkflowRecord{}, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return WorkflowRecord{}, err
	}
	return rec, nil
}

func marshalDefinition(wf *graph.Workflow) ([]byte, error) {
	if wf == nil {
		return []byte(`{}`), nil
	}
	data, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("sqlite store marshal workflow definition: %w", err)
	}
	return data, nil
}

// --- runs -----------------------------------------------------------------

func (s *SQLiteStore) CreateRun(ctx context.Context, rec RunRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, workflow_id, status, detail, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.WorkflowID,
		rec.Status,
		nullIfEmpty(rec.Detail),
		formatTime(rec.StartedAt),
		formatNullableTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite store create run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id, status, detail string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET status = ?, detail = ?, finished_at = ? WHERE id = ?`,
		status, nullIfEmpty(detail), formatTime(finishedAt), id)
	if err != nil {
		return fmt.Errorf("sqlite store finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store finish run affected rows: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, workflowID string, limit int) ([]RunRecord, error) {
	query := `
SELECT id, workflow_id, status, detail, started_at, finished_at
FROM runs
WHERE workflow_id = ?
ORDER BY started_at DESC`
	args := []any{workflowID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			rec        RunRecord
			detail     sql.NullString
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.Status, &detail, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("sqlite store scan run: %w", err)
		}
		rec.Detail = detail.String
		if rec.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if finishedAt.Valid && strings.TrimSpace(finishedAt.String) != "" {
			if rec.FinishedAt, err = parseTime(finishedAt.String); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store list runs rows: %w", err)
	}
	return records, nil
}

// --- helpers --------------------------------------------------------------

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite store parse timestamp: %w", err)
	}
	return t, nil
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error, table string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+table+".")
}

var _ Store = (*SQLiteStore)(nil)

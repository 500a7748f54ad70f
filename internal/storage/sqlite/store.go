// Package sqlite implements the persistence boundary on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/GitHub-Roomie/cobranza/internal/storage"
)

// Store is a SQLite implementation of the evaluation and action log stores.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS evaluations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			days_past_due INTEGER NOT NULL,
			score REAL NOT NULL,
			score_850 REAL NOT NULL,
			amount TEXT NOT NULL,
			level INTEGER NOT NULL,
			min_partial TEXT NOT NULL,
			channel TEXT NOT NULL,
			rationale TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS action_log (
			id TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			to_number TEXT,
			name TEXT,
			status TEXT NOT NULL,
			provider_sid TEXT,
			payload TEXT,
			error TEXT,
			answered INTEGER NOT NULL DEFAULT 0,
			answered_by TEXT,
			end_status TEXT,
			duration_sec INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_created ON evaluations(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_action_log_sid ON action_log(provider_sid)`,
		`CREATE INDEX IF NOT EXISTS idx_action_log_status ON action_log(status)`,
		`CREATE INDEX IF NOT EXISTS idx_action_log_created ON action_log(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) SaveEvaluation(ctx context.Context, ev *storage.Evaluation) error {
	ev.CreatedAt = time.Now()

	query := `INSERT INTO evaluations (id, name, days_past_due, score, score_850, amount, level, min_partial, channel, rationale, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.Name, ev.DaysPastDue, ev.Score, ev.Score850,
		ev.Amount.String(), ev.Level, ev.MinPartial.String(),
		ev.Channel, ev.Rationale, ev.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}

	return nil
}

func (s *Store) RecentEvaluations(ctx context.Context, limit int) ([]*storage.Evaluation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, name, days_past_due, score, score_850, amount, level, min_partial, channel, rationale, created_at
	          FROM evaluations ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var evaluations []*storage.Evaluation
	for rows.Next() {
		var ev storage.Evaluation
		var amount, minPartial string
		var rationale sql.NullString

		if err := rows.Scan(&ev.ID, &ev.Name, &ev.DaysPastDue, &ev.Score, &ev.Score850,
			&amount, &ev.Level, &minPartial, &ev.Channel, &rationale, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}

		if ev.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
		}
		if ev.MinPartial, err = decimal.NewFromString(minPartial); err != nil {
			return nil, fmt.Errorf("failed to parse min partial %q: %w", minPartial, err)
		}
		ev.Rationale = rationale.String

		evaluations = append(evaluations, &ev)
	}

	return evaluations, rows.Err()
}

func (s *Store) Append(ctx context.Context, entry *storage.ActionLog) error {
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt

	query := `INSERT INTO action_log (id, channel, to_number, name, status, provider_sid, payload, error, answered, answered_by, end_status, duration_sec, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.Channel, entry.To, entry.Name, entry.Status,
		entry.ProviderSID, entry.Payload, entry.Error,
		boolToInt(entry.Answered), entry.AnsweredBy, entry.EndStatus,
		entry.DurationSec, entry.CreatedAt, entry.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to append action log entry: %w", err)
	}

	return nil
}

func (s *Store) GetByProviderSID(ctx context.Context, sid string) (*storage.ActionLog, error) {
	query := selectActionLog + ` WHERE provider_sid = ?`

	entry, err := scanActionLog(s.db.QueryRowContext(ctx, query, sid))
	if err == sql.ErrNoRows {
		return nil, storage.ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action log entry: %w", err)
	}
	return entry, nil
}

func (s *Store) UpdateCallStatus(ctx context.Context, sid string, upd storage.CallStatusUpdate) error {
	// Webhooks arrive out of order; an empty answered_by or end_status must
	// not erase an outcome a terminal event already recorded.
	query := `UPDATE action_log
	          SET status = ?, answered = ?, duration_sec = ?, updated_at = ?,
	              answered_by = COALESCE(NULLIF(?, ''), answered_by),
	              end_status = COALESCE(NULLIF(?, ''), end_status)
	          WHERE provider_sid = ?`

	result, err := s.db.ExecContext(ctx, query,
		upd.Status, boolToInt(upd.Answered), upd.DurationSec, time.Now(),
		upd.AnsweredBy, upd.EndStatus, sid)
	if err != nil {
		return fmt.Errorf("failed to update call status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrLogNotFound
	}

	return nil
}

func (s *Store) UpdateAMD(ctx context.Context, sid string, answered bool, answeredBy, status string) error {
	query := `UPDATE action_log
	          SET answered = ?, answered_by = ?, status = ?, updated_at = ?
	          WHERE provider_sid = ?`

	result, err := s.db.ExecContext(ctx, query,
		boolToInt(answered), answeredBy, status, time.Now(), sid)
	if err != nil {
		return fmt.Errorf("failed to update machine detection: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrLogNotFound
	}

	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]*storage.ActionLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := selectActionLog + ` ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query action log: %w", err)
	}
	defer rows.Close()

	return collectActionLogs(rows)
}

func (s *Store) StuckCalls(ctx context.Context, since time.Time) ([]*storage.ActionLog, error) {
	query := selectActionLog + `
	          WHERE channel = 'call' AND status IN ('queued', 'sent') AND created_at >= ?
	          ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck calls: %w", err)
	}
	defer rows.Close()

	return collectActionLogs(rows)
}

func (s *Store) Close() error {
	return s.db.Close()
}

const selectActionLog = `SELECT id, channel, to_number, name, status, provider_sid, payload, error, answered, answered_by, end_status, duration_sec, created_at, updated_at
	          FROM action_log`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActionLog(row rowScanner) (*storage.ActionLog, error) {
	var entry storage.ActionLog
	var to, name, sid, payload, errMsg, answeredBy, endStatus sql.NullString
	var answered int

	if err := row.Scan(&entry.ID, &entry.Channel, &to, &name, &entry.Status,
		&sid, &payload, &errMsg, &answered, &answeredBy, &endStatus,
		&entry.DurationSec, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return nil, err
	}

	entry.To = to.String
	entry.Name = name.String
	entry.ProviderSID = sid.String
	entry.Payload = payload.String
	entry.Error = errMsg.String
	entry.Answered = answered != 0
	entry.AnsweredBy = answeredBy.String
	entry.EndStatus = endStatus.String

	return &entry, nil
}

func collectActionLogs(rows *sql.Rows) ([]*storage.ActionLog, error) {
	var entries []*storage.ActionLog
	for rows.Next() {
		entry, err := scanActionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/model"
)

// AlertFilter narrows archive queries
type AlertFilter struct {
	Kind  string
	Since time.Time
}

// AlertArchiveStorage defines the interface for persisted alert records
type AlertArchiveStorage interface {
	// Store stores an alert record
	Store(ctx context.Context, record model.AlertRecord) error

	// List retrieves alert records, newest first, with pagination
	List(ctx context.Context, filter AlertFilter, offset, limit int) ([]model.AlertRecord, error)

	// Count returns the number of records matching the filter
	Count(ctx context.Context, filter AlertFilter) (int, error)

	// DeleteBefore deletes records older than the specified time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)

	// Close releases the storage
	Close() error
}

// AlertArchive implements AlertArchiveStorage using SQLite. It also
// satisfies handler.Handler so it can be registered with the dispatcher.
type AlertArchive struct {
	logger *zap.Logger
	db     *sql.DB
	now    func() time.Time
}

// NewAlertArchive opens (or creates) the SQLite archive at dbPath
func NewAlertArchive(logger *zap.Logger, dbPath string) (*AlertArchive, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite3 allows a single writer
	db.SetMaxOpenConns(1)

	archive := &AlertArchive{
		logger: logger.Named("alert-archive"),
		db:     db,
		now:    time.Now,
	}

	if err := archive.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return archive, nil
}

// initialize creates the necessary tables if they don't exist
func (a *AlertArchive) initialize() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS alert_history (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			source TEXT,
			message TEXT NOT NULL,
			value REAL NOT NULL,
			fired_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_alert_history_kind ON alert_history(kind);
		CREATE INDEX IF NOT EXISTS idx_alert_history_fired_at ON alert_history(fired_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Name implements handler.Handler
func (a *AlertArchive) Name() string { return "archive" }

// Send implements handler.Handler by archiving the alert
func (a *AlertArchive) Send(ctx context.Context, kind, message string, value float64) error {
	return a.Store(ctx, model.AlertRecord{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   message,
		Value:     value,
		Timestamp: a.now(),
	})
}

// SendRecord implements handler.RecordSender
func (a *AlertArchive) SendRecord(ctx context.Context, record model.AlertRecord) error {
	return a.Store(ctx, record)
}

// Store implements AlertArchiveStorage.Store
func (a *AlertArchive) Store(ctx context.Context, record model.AlertRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO alert_history (
			id, kind, source, message, value, fired_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Kind,
		sql.NullString{String: record.Source, Valid: record.Source != ""},
		record.Message,
		record.Value,
		record.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

// List implements AlertArchiveStorage.List
func (a *AlertArchive) List(ctx context.Context, filter AlertFilter, offset, limit int) ([]model.AlertRecord, error) {
	where, args := filter.clause()
	query := "SELECT id, kind, source, message, value, fired_at FROM alert_history" + where +
		" ORDER BY fired_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var records []model.AlertRecord
	for rows.Next() {
		var record model.AlertRecord
		var source sql.NullString

		if err := rows.Scan(
			&record.ID,
			&record.Kind,
			&source,
			&record.Message,
			&record.Value,
			&record.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if source.Valid {
			record.Source = source.String
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Count implements AlertArchiveStorage.Count
func (a *AlertArchive) Count(ctx context.Context, filter AlertFilter) (int, error) {
	where, args := filter.clause()

	var count int
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// DeleteBefore implements AlertArchiveStorage.DeleteBefore
func (a *AlertArchive) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := a.db.ExecContext(ctx, "DELETE FROM alert_history WHERE fired_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete alerts: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	a.logger.Info("Deleted old alert records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (a *AlertArchive) Close() error {
	return a.db.Close()
}

func (f AlertFilter) clause() (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, f.Kind)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "fired_at >= ?")
		args = append(args, f.Since.UTC())
	}

	if len(conds) == 0 {
		return "", args
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

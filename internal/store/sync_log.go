package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type syncLogStore struct {
	db *sqlx.DB
}

// Record appends one run summary row. There is no update path; the log is an
// immutable audit trail.
func (s *syncLogStore) Record(ctx context.Context, run *SyncRun) error {
	query := `INSERT INTO fin_sync_log (
		entity_type, status, records_created, records_updated, records_unchanged,
		records_errored, records_total, duration_ms, triggered_by, error_message
	) VALUES (
		:entity_type, :status, :records_created, :records_updated, :records_unchanged,
		:records_errored, :records_total, :duration_ms, :triggered_by, :error_message
	) RETURNING id, created_at`

	rows, err := sqlx.NamedQueryContext(ctx, s.db, query, run)
	if err != nil {
		return err
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&run.ID, &run.CreatedAt); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *syncLogStore) Latest(ctx context.Context, limit int) ([]SyncRun, error) {
	runs := []SyncRun{}
	err := s.db.SelectContext(ctx, &runs,
		`SELECT * FROM fin_sync_log ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return runs, nil
}

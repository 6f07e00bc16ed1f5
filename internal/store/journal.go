package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// journalInsertChunk bounds the multi-row insert statement size; purely a
// throughput knob, not part of any contract.
const journalInsertChunk = 500

type journalStore struct {
	db        *sqlx.DB
	chunkSize int
}

// ReplaceNonLocked deletes every entry with is_locked = FALSE and inserts the
// given set, all in one transaction, so a crash mid-run cannot leave the
// books half-regenerated. Locked entries are never touched.
func (s *journalStore) ReplaceNonLocked(ctx context.Context, entries []JournalEntry) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fin_journal_entries WHERE is_locked = FALSE`); err != nil {
		return 0, fmt.Errorf("wipe non-locked journal entries: %w", err)
	}

	query := `INSERT INTO fin_journal_entries (
		entry_date, journal_code, piece_num, account_code, label, debit, credit,
		source_type, source_id, source_ref, thirdparty_id, currency_code, is_locked
	) VALUES (
		:entry_date, :journal_code, :piece_num, :account_code, :label, :debit, :credit,
		:source_type, :source_id, :source_ref, :thirdparty_id, :currency_code, :is_locked
	)`

	inserted := 0
	for start := 0; start < len(entries); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]
		if _, err := tx.NamedExecContext(ctx, query, chunk); err != nil {
			return 0, fmt.Errorf("insert journal entries %d..%d: %w", start, end, err)
		}
		inserted += len(chunk)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *journalStore) DebitTotalsByYear(ctx context.Context) ([]YearTotal, error) {
	totals := []YearTotal{}
	err := s.db.SelectContext(ctx, &totals, `SELECT
		EXTRACT(YEAR FROM entry_date)::int AS yr,
		COUNT(*)::int AS cnt,
		COALESCE(SUM(debit), 0) AS total
	FROM fin_journal_entries
	GROUP BY yr ORDER BY yr DESC`)
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *journalStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM fin_journal_entries`); err != nil {
		return 0, err
	}
	return count, nil
}

package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type riskStore struct {
	db *sqlx.DB
}

// Unresolved returns active risk events, most severe first, newest first
// within a severity. Severity ordering is by the fixed CRITICAL > HIGH >
// MEDIUM > LOW scale, not alphabetical.
func (s *riskStore) Unresolved(ctx context.Context) ([]RiskEvent, error) {
	events := []RiskEvent{}
	err := s.db.SelectContext(ctx, &events, `SELECT * FROM risk_events
		WHERE resolved_at IS NULL
		ORDER BY CASE severity
			WHEN 'CRITICAL' THEN 0
			WHEN 'HIGH' THEN 1
			WHEN 'MEDIUM' THEN 2
			ELSE 3
		END, detected_at DESC`)
	if err != nil {
		return nil, err
	}
	return events, nil
}

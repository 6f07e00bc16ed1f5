package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type opsStore struct {
	db *sqlx.DB
}

// referenceQueries maps a work unit's reference module to the query that
// resolves its display name. COALESCE order mirrors what the dashboard shows
// for each module.
var referenceQueries = map[string]string{
	"Task":               `SELECT title FROM ops_tasks WHERE id = $1`,
	"WorkOrder":          `SELECT work_order_number FROM ops_work_orders WHERE id = $1`,
	"RFIRequest":         `SELECT rfi_number FROM ops_rfi_requests WHERE id = $1`,
	"DocumentSubmission": `SELECT COALESCE(NULLIF(submission_number, ''), title) FROM ops_document_submissions WHERE id = $1`,
	"AssemblyPart":       `SELECT COALESCE(NULLIF(part_designation, ''), name) FROM ops_assembly_parts WHERE id = $1`,
}

func (s *opsStore) WorkUnits(ctx context.Context, ids []string) ([]WorkUnit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM work_units WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	units := []WorkUnit{}
	if err := s.db.SelectContext(ctx, &units, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return units, nil
}

func (s *opsStore) ReferenceExists(ctx context.Context, module, referenceID string) (bool, error) {
	query, ok := referenceQueries[module]
	if !ok {
		return false, nil
	}
	var name string
	err := s.db.GetContext(ctx, &name, query, referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReferenceName returns the human-readable name for a referenced entity, or
// "" when the entity is gone or the module is unknown.
func (s *opsStore) ReferenceName(ctx context.Context, module, referenceID string) (string, error) {
	query, ok := referenceQueries[module]
	if !ok {
		return "", nil
	}
	var name string
	err := s.db.GetContext(ctx, &name, query, referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func (s *opsStore) ProjectsByIDs(ctx context.Context, ids []string) ([]Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, project_number, name, status, client_name FROM projects WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	projects := []Project{}
	if err := s.db.SelectContext(ctx, &projects, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *opsStore) AssemblyPartHash(ctx context.Context, partDesignation string) (string, bool, error) {
	var hash string
	err := s.db.GetContext(ctx, &hash,
		`SELECT sync_hash FROM ops_assembly_parts WHERE part_designation = $1`, partDesignation)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (s *opsStore) UpsertAssemblyPart(ctx context.Context, part *AssemblyPart) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO ops_assembly_parts (
		id, project_number, part_designation, name, profile, grade,
		quantity, weight_total_kg, building_name, sync_hash, first_synced_at, last_synced_at
	) VALUES (
		:id, :project_number, :part_designation, :name, :profile, :grade,
		:quantity, :weight_total_kg, :building_name, :sync_hash, now(), now()
	)
	ON CONFLICT (part_designation) DO UPDATE SET
		project_number = EXCLUDED.project_number,
		name = EXCLUDED.name,
		profile = EXCLUDED.profile,
		grade = EXCLUDED.grade,
		quantity = EXCLUDED.quantity,
		weight_total_kg = EXCLUDED.weight_total_kg,
		building_name = EXCLUDED.building_name,
		sync_hash = EXCLUDED.sync_hash,
		last_synced_at = now()`, part)
	if err != nil {
		return fmt.Errorf("upsert assembly part %s: %w", part.PartDesignation, err)
	}
	return nil
}

func (s *opsStore) ProductionLogHash(ctx context.Context, partDesignation, process, reportNo string) (string, bool, error) {
	var hash string
	err := s.db.GetContext(ctx, &hash,
		`SELECT sync_hash FROM ops_production_logs
		WHERE part_designation = $1 AND process = $2 AND report_no = $3`,
		partDesignation, process, reportNo)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (s *opsStore) UpsertProductionLog(ctx context.Context, plog *ProductionLog) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO ops_production_logs (
		part_designation, process, processed_qty, process_date, processed_by,
		report_no, sync_hash, first_synced_at, last_synced_at
	) VALUES (
		:part_designation, :process, :processed_qty, :process_date, :processed_by,
		:report_no, :sync_hash, now(), now()
	)
	ON CONFLICT (part_designation, process, report_no) DO UPDATE SET
		processed_qty = EXCLUDED.processed_qty,
		process_date = EXCLUDED.process_date,
		processed_by = EXCLUDED.processed_by,
		sync_hash = EXCLUDED.sync_hash,
		last_synced_at = now()`, plog)
	if err != nil {
		return fmt.Errorf("upsert production log %s/%s: %w", plog.PartDesignation, plog.Process, err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/wardenhq/warden/internal/domain/control"
)

// InsertControl appends a mode-change record. The log is append-only;
// the effective mode is resolved by reading the most recent row.
func (s *Store) InsertControl(ctx context.Context, rec *control.Record) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO operator_controls (tenant_id, project_id, mode, reason, set_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		tenantFromCtx(ctx), nullIfEmpty(rec.ProjectID), string(rec.Mode), rec.Reason, rec.SetBy,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// LatestControl returns the most recent control record for the given
// project scope. An empty projectID selects the global scope.
func (s *Store) LatestControl(ctx context.Context, projectID string) (*control.Record, error) {
	var row scannable
	if projectID == "" {
		row = s.pool.QueryRow(ctx,
			`SELECT id, tenant_id, COALESCE(project_id::text, ''), mode, reason, set_by, created_at
			 FROM operator_controls
			 WHERE tenant_id = $1 AND project_id IS NULL
			 ORDER BY created_at DESC LIMIT 1`, tenantFromCtx(ctx))
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT id, tenant_id, COALESCE(project_id::text, ''), mode, reason, set_by, created_at
			 FROM operator_controls
			 WHERE tenant_id = $1 AND project_id = $2
			 ORDER BY created_at DESC LIMIT 1`, tenantFromCtx(ctx), projectID)
	}

	rec, err := scanControl(row)
	if err != nil {
		return nil, notFoundWrap(err, "latest control for scope %q", projectID)
	}
	return &rec, nil
}

func (s *Store) ListControls(ctx context.Context, limit int) ([]control.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, COALESCE(project_id::text, ''), mode, reason, set_by, created_at
		 FROM operator_controls WHERE tenant_id = $1
		 ORDER BY created_at DESC LIMIT $2`, tenantFromCtx(ctx), limit)
	if err != nil {
		return nil, fmt.Errorf("list controls: %w", err)
	}
	defer rows.Close()

	var records []control.Record
	for rows.Next() {
		rec, err := scanControl(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanControl(row scannable) (control.Record, error) {
	var rec control.Record
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.ProjectID, &rec.Mode, &rec.Reason, &rec.SetBy, &rec.CreatedAt)
	return rec, err
}
